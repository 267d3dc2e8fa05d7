package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/driftdata/driftsync/internal/configrepo"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
	"github.com/driftdata/driftsync/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubmitter(t *testing.T, mockStore *store.MockStore, configRoot string, workflows temporal.ClientInterface, maxWorkers int) *JobSubmitter {
	t.Helper()
	return NewJobSubmitter(mockStore, configrepo.NewRepository(configRoot), workflows, fakeTracker{}, &fakeNotifier{}, maxWorkers, t.TempDir())
}

// waitForStatus polls the store until the job reaches the wanted status
func waitForStatus(t *testing.T, mockStore *store.MockStore, jobID int64, status models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := mockStore.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := mockStore.GetJob(context.Background(), jobID)
	t.Fatalf("job %d never reached %s (currently %s)", jobID, status, job.Status)
	return nil
}

func TestSubmitterRunsJobToSuccess(t *testing.T) {
	fixture := newConnectionFixture(t, configrepo.StandardSync{
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	ctx := context.Background()
	jobID, err := mockStore.EnqueueJob(ctx, fixture.connectionID.String(), models.ConfigTypeSync, nil)
	require.NoError(t, err)

	workflows := temporal.NewMockClient()
	workflows.SubmitSyncFunc = func(ctx context.Context, input temporal.SyncInput) (*temporal.SyncOutput, error) {
		return &temporal.SyncOutput{RecordsSynced: 5}, nil
	}
	s := newTestSubmitter(t, mockStore, fixture.root, workflows, 2)

	s.Tick(ctx)
	job := waitForStatus(t, mockStore, *jobID, models.JobStatusSucceeded)

	require.Len(t, job.Attempts, 1)
	assert.Equal(t, models.AttemptStatusSucceeded, job.Attempts[0].Status)
	assert.EqualValues(t, 5, job.Attempts[0].Output["recordsSynced"])

	submissions := workflows.Submissions()
	require.Len(t, submissions, 1)
	assert.Equal(t,
		fmt.Sprintf("connection-%s-%d-0", fixture.connectionID, *jobID),
		submissions[0].WorkflowID,
	)
	assert.Equal(t, "driftdata/source-test:0.1.0", submissions[0].SourceImage)
	assert.Equal(t, "driftdata/destination-test:0.1.0", submissions[0].DestinationImage)
}

func TestSubmitterRecordsWorkflowFailure(t *testing.T) {
	fixture := newConnectionFixture(t, configrepo.StandardSync{
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	ctx := context.Background()
	jobID, err := mockStore.EnqueueJob(ctx, fixture.connectionID.String(), models.ConfigTypeSync, nil)
	require.NoError(t, err)

	workflows := temporal.NewMockClient()
	workflows.SubmitSyncFunc = func(ctx context.Context, input temporal.SyncInput) (*temporal.SyncOutput, error) {
		return nil, errors.New("source container exited with code 1")
	}
	s := newTestSubmitter(t, mockStore, fixture.root, workflows, 2)

	s.Tick(ctx)
	job := waitForStatus(t, mockStore, *jobID, models.JobStatusIncomplete)

	require.Len(t, job.Attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, job.Attempts[0].Status)
}

func TestSubmitterStopsTickWhenPoolSaturated(t *testing.T) {
	fixtureA := newConnectionFixture(t, configrepo.StandardSync{
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	ctx := context.Background()

	jobA, err := mockStore.EnqueueJob(ctx, fixtureA.connectionID.String(), models.ConfigTypeSync, nil)
	require.NoError(t, err)
	jobB, err := mockStore.EnqueueJob(ctx, "9b1f2f60-28a4-4f5e-b7cb-12f48bbf60a2", models.ConfigTypeSync, nil)
	require.NoError(t, err)
	require.NotEqual(t, *jobA, *jobB)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	workflows := temporal.NewMockClient()
	workflows.SubmitSyncFunc = func(ctx context.Context, input temporal.SyncInput) (*temporal.SyncOutput, error) {
		started <- struct{}{}
		<-release
		return &temporal.SyncOutput{}, nil
	}
	s := newTestSubmitter(t, mockStore, fixtureA.root, workflows, 1)

	s.Tick(ctx)
	<-started

	// pool of one is busy, so the second pending job is left alone
	s.Tick(ctx)
	jobBState, err := mockStore.GetJob(ctx, *jobB)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, jobBState.Status)
	assert.Empty(t, jobBState.Attempts)

	close(release)
	waitForStatus(t, mockStore, *jobA, models.JobStatusSucceeded)
}

// outcomeContextStore records the context state seen by each outcome write
type outcomeContextStore struct {
	store.JobPersistence

	mu          sync.Mutex
	outcomeErrs []error
}

func (o *outcomeContextStore) FailAttempt(ctx context.Context, jobID int64, attemptNumber int) error {
	o.record(ctx)
	return o.JobPersistence.FailAttempt(ctx, jobID, attemptNumber)
}

func (o *outcomeContextStore) SucceedAttempt(ctx context.Context, jobID int64, attemptNumber int, output models.JSONB) error {
	o.record(ctx)
	return o.JobPersistence.SucceedAttempt(ctx, jobID, attemptNumber, output)
}

func (o *outcomeContextStore) record(ctx context.Context) {
	o.mu.Lock()
	o.outcomeErrs = append(o.outcomeErrs, ctx.Err())
	o.mu.Unlock()
}

func (o *outcomeContextStore) recorded() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.outcomeErrs...)
}

func TestSubmitterRecordsFailureAfterShutdownCancel(t *testing.T) {
	fixture := newConnectionFixture(t, configrepo.StandardSync{
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	wrapped := &outcomeContextStore{JobPersistence: mockStore}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobID, err := mockStore.EnqueueJob(ctx, fixture.connectionID.String(), models.ConfigTypeSync, nil)
	require.NoError(t, err)

	started := make(chan struct{})
	workflows := temporal.NewMockClient()
	workflows.SubmitSyncFunc = func(ctx context.Context, input temporal.SyncInput) (*temporal.SyncOutput, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := NewJobSubmitter(wrapped, configrepo.NewRepository(fixture.root), workflows, fakeTracker{}, &fakeNotifier{}, 2, t.TempDir())

	s.Tick(ctx)
	<-started
	cancel()

	job := waitForStatus(t, mockStore, *jobID, models.JobStatusIncomplete)
	require.Len(t, job.Attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, job.Attempts[0].Status)

	errs := wrapped.recorded()
	require.NotEmpty(t, errs)
	for _, recordErr := range errs {
		assert.NoError(t, recordErr, "outcome write must not run on the cancelled dispatch context")
	}
}

func TestSubmitterRecordsSuccessAfterShutdownCancel(t *testing.T) {
	fixture := newConnectionFixture(t, configrepo.StandardSync{
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	wrapped := &outcomeContextStore{JobPersistence: mockStore}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobID, err := mockStore.EnqueueJob(ctx, fixture.connectionID.String(), models.ConfigTypeSync, nil)
	require.NoError(t, err)

	started := make(chan struct{})
	workflows := temporal.NewMockClient()
	workflows.SubmitSyncFunc = func(ctx context.Context, input temporal.SyncInput) (*temporal.SyncOutput, error) {
		close(started)
		// a worker that finishes its upload right as the scheduler stops
		<-ctx.Done()
		return &temporal.SyncOutput{RecordsSynced: 7}, nil
	}
	s := NewJobSubmitter(wrapped, configrepo.NewRepository(fixture.root), workflows, fakeTracker{}, &fakeNotifier{}, 2, t.TempDir())

	s.Tick(ctx)
	<-started
	cancel()

	job := waitForStatus(t, mockStore, *jobID, models.JobStatusSucceeded)
	require.Len(t, job.Attempts, 1)
	assert.EqualValues(t, 7, job.Attempts[0].Output["recordsSynced"])

	errs := wrapped.recorded()
	require.NotEmpty(t, errs)
	for _, recordErr := range errs {
		assert.NoError(t, recordErr, "outcome write must not run on the cancelled dispatch context")
	}
}

func TestSubmitterFailsAttemptWhenConfigMissing(t *testing.T) {
	mockStore := store.NewMockStore()
	ctx := context.Background()
	// scope references a connection absent from the (empty) config root
	jobID, err := mockStore.EnqueueJob(ctx, "5d9f6e1f-3f83-45a2-b1ea-6f4e57f0a111", models.ConfigTypeSync, nil)
	require.NoError(t, err)

	s := newTestSubmitter(t, mockStore, t.TempDir(), temporal.NewMockClient(), 2)
	s.Tick(ctx)

	job, err := mockStore.GetJob(ctx, *jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusIncomplete, job.Status)
	require.Len(t, job.Attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, job.Attempts[0].Status)
}
