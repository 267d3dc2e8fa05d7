package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftdata/driftsync/internal/store/models"
)

// MockStore is an in-memory JobPersistence for tests. It mirrors the
// transactional semantics of the postgres store under a single mutex.
type MockStore struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]*models.Job
	version string
	nowFunc func() time.Time
}

// NewMockStore creates an empty in-memory persistence
func NewMockStore() *MockStore {
	return &MockStore{
		nextID:  1,
		jobs:    make(map[int64]*models.Job),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock, for cadence and backoff tests
func (m *MockStore) SetNowFunc(f func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = f
}

func (m *MockStore) Initialize() (func(), error) {
	return func() {}, nil
}

func (m *MockStore) EnqueueJob(ctx context.Context, scope string, configType models.ConfigType, jobConfig models.JSONB) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.Scope == scope && j.ConfigType == configType && !j.IsTerminal() {
			return nil, nil
		}
	}

	now := m.nowFunc()
	job := &models.Job{
		ID:         m.nextID,
		Scope:      scope,
		ConfigType: configType,
		Config:     jobConfig,
		Status:     models.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.nextID++
	m.jobs[job.ID] = job
	id := job.ID
	return &id, nil
}

func (m *MockStore) CreateAttempt(ctx context.Context, jobID int64, logPath string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return 0, ErrNotFound
	}
	if job.Status != models.JobStatusPending && job.Status != models.JobStatusIncomplete {
		return 0, fmt.Errorf("cannot create attempt for job %d in status %s: %w", jobID, job.Status, ErrInvalidState)
	}

	now := m.nowFunc()
	attempt := models.Attempt{
		JobID:         jobID,
		AttemptNumber: len(job.Attempts),
		Status:        models.AttemptStatusRunning,
		LogPath:       logPath,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	job.Attempts = append(job.Attempts, attempt)
	job.Status = models.JobStatusRunning
	job.UpdatedAt = now
	return attempt.AttemptNumber, nil
}

func (m *MockStore) FailAttempt(ctx context.Context, jobID int64, attemptNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endAttemptLocked(jobID, attemptNumber, models.AttemptStatusFailed, nil, models.JobStatusIncomplete)
}

func (m *MockStore) SucceedAttempt(ctx context.Context, jobID int64, attemptNumber int, output models.JSONB) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endAttemptLocked(jobID, attemptNumber, models.AttemptStatusSucceeded, output, models.JobStatusSucceeded)
}

func (m *MockStore) endAttemptLocked(jobID int64, attemptNumber int, status models.AttemptStatus, output models.JSONB, jobStatus models.JobStatus) error {
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if attemptNumber < 0 || attemptNumber >= len(job.Attempts) {
		return ErrNotFound
	}

	now := m.nowFunc()
	attempt := &job.Attempts[attemptNumber]
	attempt.Status = status
	attempt.UpdatedAt = now
	attempt.EndedAt = &now
	if output != nil {
		attempt.Output = output
	}

	if !job.IsTerminal() {
		job.Status = jobStatus
		job.UpdatedAt = now
	}
	return nil
}

func (m *MockStore) CancelJob(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.IsTerminal() {
		return nil
	}

	now := m.nowFunc()
	for i := range job.Attempts {
		if job.Attempts[i].Status == models.AttemptStatusRunning {
			job.Attempts[i].Status = models.AttemptStatusFailed
			job.Attempts[i].UpdatedAt = now
			job.Attempts[i].EndedAt = &now
		}
	}
	job.Status = models.JobStatusCancelled
	job.UpdatedAt = now
	return nil
}

func (m *MockStore) FailJob(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.IsTerminal() {
		return ErrInvalidState
	}
	job.Status = models.JobStatusFailed
	job.UpdatedAt = m.nowFunc()
	return nil
}

func (m *MockStore) ResetJob(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != models.JobStatusIncomplete {
		return ErrInvalidState
	}
	job.Status = models.JobStatusPending
	job.UpdatedAt = m.nowFunc()
	return nil
}

func (m *MockStore) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	copied.Attempts = append([]models.Attempt(nil), job.Attempts...)
	return &copied, nil
}

func (m *MockStore) ListJobsWithStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []models.Job
	for _, job := range m.sortedJobsLocked() {
		if job.Status == status {
			copied := *job
			copied.Attempts = append([]models.Attempt(nil), job.Attempts...)
			jobs = append(jobs, copied)
		}
	}
	return jobs, nil
}

func (m *MockStore) ListJobs(ctx context.Context, configType models.ConfigType, scope string, limit, offset int) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.Job
	sorted := m.sortedJobsLocked()
	// newest first
	for i := len(sorted) - 1; i >= 0; i-- {
		job := sorted[i]
		if job.ConfigType != configType {
			continue
		}
		if scope != "" && job.Scope != scope {
			continue
		}
		matched = append(matched, *job)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MockStore) GetNextJob(ctx context.Context) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := make(map[string]bool)
	for _, job := range m.jobs {
		if job.Status == models.JobStatusRunning {
			running[job.Scope] = true
		}
	}
	for _, job := range m.sortedJobsLocked() {
		if job.Status == models.JobStatusPending && !running[job.Scope] {
			copied := *job
			copied.Attempts = append([]models.Attempt(nil), job.Attempts...)
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockStore) GetLastReplicationJob(ctx context.Context, scope string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := m.sortedJobsLocked()
	for i := len(sorted) - 1; i >= 0; i-- {
		job := sorted[i]
		if job.Scope == scope && job.ConfigType == models.ConfigTypeSync && job.IsTerminal() {
			copied := *job
			copied.Attempts = append([]models.Attempt(nil), job.Attempts...)
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockStore) GetVersion(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, nil
}

func (m *MockStore) SetVersion(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
	return nil
}

// sortedJobsLocked returns jobs ordered by id ascending, which tracks
// creation order
func (m *MockStore) sortedJobsLocked() []*models.Job {
	jobs := make([]*models.Job, 0, len(m.jobs))
	for id := int64(1); id < m.nextID; id++ {
		if job, ok := m.jobs[id]; ok {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Ensure MockStore implements the persistence interface
var _ JobPersistence = (*MockStore)(nil)
