package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/configrepo"
	"github.com/driftdata/driftsync/internal/metrics"
	"github.com/driftdata/driftsync/internal/notifier"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
	"github.com/driftdata/driftsync/internal/temporal"
	"github.com/driftdata/driftsync/internal/tracking"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
)

// JobSubmitter hands eligible PENDING jobs to the worker pool. A tick drains
// jobs until either none remain or the pool is saturated; a slow attempt
// never stalls the dispatch loop.
type JobSubmitter struct {
	store         store.JobPersistence
	configs       *configrepo.Repository
	workflows     temporal.ClientInterface
	tracker       tracking.Tracker
	notifier      notifier.Notifier
	pool          *workerpool.WorkerPool
	maxWorkers    int
	workspaceRoot string

	inFlight atomic.Int64
	nowFunc  func() time.Time
}

// NewJobSubmitter creates a submitter with a bounded worker pool
func NewJobSubmitter(persistence store.JobPersistence, configs *configrepo.Repository, workflows temporal.ClientInterface, tracker tracking.Tracker, n notifier.Notifier, maxWorkers int, workspaceRoot string) *JobSubmitter {
	return &JobSubmitter{
		store:         persistence,
		configs:       configs,
		workflows:     workflows,
		tracker:       tracker,
		notifier:      n,
		pool:          workerpool.New(maxWorkers),
		maxWorkers:    maxWorkers,
		workspaceRoot: workspaceRoot,
		nowFunc:       time.Now,
	}
}

// Tick submits jobs until the queue is empty or every worker is busy
func (s *JobSubmitter) Tick(ctx context.Context) {
	for {
		if int(s.inFlight.Load()) >= s.maxWorkers {
			return
		}

		job, err := s.store.GetNextJob(ctx)
		if err != nil {
			logging.Log.WithError(err).Error("Failed to get next job")
			return
		}
		if job == nil {
			return
		}

		if err := s.submit(ctx, job); err != nil {
			logging.Log.WithError(err).WithField("job_id", job.ID).Error("Failed to submit job")
			return
		}
	}
}

func (s *JobSubmitter) submit(ctx context.Context, job *models.Job) error {
	attemptNumber, err := s.prepareAttempt(ctx, job)
	if err != nil {
		return err
	}

	input, err := s.buildSyncInput(job, attemptNumber)
	if err != nil {
		// the attempt is already RUNNING; record the failure so the retrier
		// sees it
		if failErr := s.store.FailAttempt(context.WithoutCancel(ctx), job.ID, attemptNumber); failErr != nil {
			logging.Log.WithError(failErr).WithField("job_id", job.ID).Error("Failed to fail unlaunchable attempt")
		}
		return err
	}

	s.inFlight.Add(1)
	metrics.WorkersActive.Set(float64(s.inFlight.Load()))
	s.pool.Submit(func() {
		defer func() {
			s.inFlight.Add(-1)
			metrics.WorkersActive.Set(float64(s.inFlight.Load()))
		}()
		s.runAttempt(ctx, job, attemptNumber, input)
	})
	return nil
}

// prepareAttempt creates the attempt row and an empty workspace directory
func (s *JobSubmitter) prepareAttempt(ctx context.Context, job *models.Job) (int, error) {
	// attempt numbers are dense, so the next one is the current count
	expected := len(job.Attempts)
	logPath := filepath.Join(s.attemptWorkspace(job.ID, expected), "logs.log")

	attemptNumber, err := s.store.CreateAttempt(ctx, job.ID, logPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create attempt: %w", err)
	}
	if attemptNumber != expected {
		return 0, fmt.Errorf("attempt number mismatch for job %d: expected %d, got %d", job.ID, expected, attemptNumber)
	}

	jobRoot := s.attemptWorkspace(job.ID, attemptNumber)
	if err := os.RemoveAll(jobRoot); err != nil {
		return 0, fmt.Errorf("failed to clear attempt workspace: %w", err)
	}
	if err := os.MkdirAll(jobRoot, 0755); err != nil {
		return 0, fmt.Errorf("failed to create attempt workspace: %w", err)
	}

	metrics.RecordAttempt(string(job.ConfigType))
	return attemptNumber, nil
}

func (s *JobSubmitter) attemptWorkspace(jobID int64, attemptNumber int) string {
	return filepath.Join(s.workspaceRoot, fmt.Sprint(jobID), fmt.Sprint(attemptNumber))
}

// buildSyncInput resolves the connection's images and configurations
func (s *JobSubmitter) buildSyncInput(job *models.Job, attemptNumber int) (temporal.SyncInput, error) {
	connectionID, err := uuid.Parse(job.Scope)
	if err != nil {
		return temporal.SyncInput{}, fmt.Errorf("job %d has non-uuid scope %q: %w", job.ID, job.Scope, err)
	}

	sync, err := s.configs.GetStandardSync(connectionID)
	if err != nil {
		return temporal.SyncInput{}, err
	}
	source, err := s.configs.GetSourceConnection(sync.SourceID)
	if err != nil {
		return temporal.SyncInput{}, err
	}
	destination, err := s.configs.GetDestinationConnection(sync.DestinationID)
	if err != nil {
		return temporal.SyncInput{}, err
	}
	sourceDef, err := s.configs.GetSourceDefinition(source.SourceDefinitionID)
	if err != nil {
		return temporal.SyncInput{}, err
	}
	destinationDef, err := s.configs.GetDestinationDefinition(destination.DestinationDefinitionID)
	if err != nil {
		return temporal.SyncInput{}, err
	}

	return temporal.SyncInput{
		WorkflowID:        temporal.WorkflowID(connectionID, job.ID, attemptNumber),
		JobID:             job.ID,
		AttemptNumber:     attemptNumber,
		JobRoot:           s.attemptWorkspace(job.ID, attemptNumber),
		SourceImage:       sourceDef.ImageName(),
		DestinationImage:  destinationDef.ImageName(),
		SourceConfig:      source.Configuration,
		DestinationConfig: destination.Configuration,
		Catalog:           sync.Catalog,
	}, nil
}

// runAttempt executes the workflow and records the outcome
func (s *JobSubmitter) runAttempt(ctx context.Context, job *models.Job, attemptNumber int, input temporal.SyncInput) {
	logger := logging.Log.WithField("job_id", job.ID).WithField("attempt", attemptNumber)
	started := s.nowFunc()

	// shutdown cancels ctx to abort the workflow, but the outcome must still
	// be recorded or the attempt lingers RUNNING until the next reap
	recordCtx := context.WithoutCancel(ctx)

	s.tracker.Track("sync_attempt_started", map[string]interface{}{
		"job_id":      job.ID,
		"attempt":     attemptNumber,
		"config_type": string(job.ConfigType),
	})

	output, err := s.workflows.SubmitSync(ctx, input)
	duration := s.nowFunc().Sub(started)

	if err != nil {
		logger.WithError(err).Error("Sync attempt failed")
		metrics.RecordAttemptDuration(string(job.ConfigType), string(models.AttemptStatusFailed), duration.Seconds())
		if failErr := s.store.FailAttempt(recordCtx, job.ID, attemptNumber); failErr != nil {
			logger.WithError(failErr).Error("Failed to record attempt failure")
		}
		s.tracker.Track("sync_attempt_failed", map[string]interface{}{
			"job_id":           job.ID,
			"attempt":          attemptNumber,
			"duration_seconds": duration.Seconds(),
		})
		s.notifier.Notify(recordCtx, notifier.Notification{
			JobID:      job.ID,
			Scope:      job.Scope,
			ConfigType: string(job.ConfigType),
			Status:     string(models.AttemptStatusFailed),
			Reason:     err.Error(),
		})
		return
	}
	if output == nil {
		// duplicate submission absorbed by the workflow identity; the
		// original run owns the attempt record
		logger.Warn("Sync attempt deduplicated by workflow identity")
		return
	}

	outputJSON := models.JSONB{"recordsSynced": output.RecordsSynced}
	if len(output.State) > 0 {
		var state interface{}
		if err := json.Unmarshal(output.State, &state); err == nil {
			outputJSON["state"] = state
		}
	}

	if err := s.store.SucceedAttempt(recordCtx, job.ID, attemptNumber, outputJSON); err != nil {
		logger.WithError(err).Error("Failed to record attempt success")
		return
	}

	metrics.RecordAttemptDuration(string(job.ConfigType), string(models.AttemptStatusSucceeded), duration.Seconds())
	metrics.RecordJobCompleted(string(job.ConfigType), string(models.JobStatusSucceeded))
	s.tracker.Track("sync_attempt_succeeded", map[string]interface{}{
		"job_id":           job.ID,
		"attempt":          attemptNumber,
		"duration_seconds": duration.Seconds(),
		"records_synced":   output.RecordsSynced,
	})
	logger.WithField("records", output.RecordsSynced).Info("Sync attempt succeeded")
}

// StopWait blocks until in-flight attempts finish or the timeout elapses,
// then abandons the rest. New submissions are rejected either way.
func (s *JobSubmitter) StopWait(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.pool.StopWait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.Log.Warn("Graceful shutdown timed out with attempts still running")
	}
}
