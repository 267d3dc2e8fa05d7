package scheduler

import (
	"context"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/metrics"
	"github.com/driftdata/driftsync/internal/notifier"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
)

const (
	// DefaultMaxAttempts is the retry budget per job
	DefaultMaxAttempts = 3

	defaultBaseDelay = 10 * time.Second
	defaultMaxDelay  = 10 * time.Minute
)

// JobRetrier advances INCOMPLETE jobs: back to PENDING when their backoff
// has elapsed, or to terminal FAILED when the retry budget is spent.
type JobRetrier struct {
	store       store.JobPersistence
	notifier    notifier.Notifier
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	nowFunc     func() time.Time
}

// NewJobRetrier creates a retrier with the default backoff policy
func NewJobRetrier(persistence store.JobPersistence, n notifier.Notifier) *JobRetrier {
	return &JobRetrier{
		store:       persistence,
		notifier:    n,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		nowFunc:     time.Now,
	}
}

// Tick walks all INCOMPLETE jobs once
func (r *JobRetrier) Tick(ctx context.Context) {
	jobs, err := r.store.ListJobsWithStatus(ctx, models.JobStatusIncomplete)
	if err != nil {
		logging.Log.WithError(err).Error("Failed to list incomplete jobs")
		return
	}

	for i := range jobs {
		if err := r.advance(ctx, &jobs[i]); err != nil {
			logging.Log.WithError(err).WithField("job_id", jobs[i].ID).Error("Failed to advance incomplete job")
		}
	}
}

func (r *JobRetrier) advance(ctx context.Context, job *models.Job) error {
	failed := job.FailedAttemptCount()

	if failed >= r.maxAttempts {
		if err := r.store.FailJob(ctx, job.ID); err != nil {
			return err
		}
		metrics.RecordJobCompleted(string(job.ConfigType), string(models.JobStatusFailed))
		r.notifier.Notify(ctx, notifier.Notification{
			JobID:      job.ID,
			Scope:      job.Scope,
			ConfigType: string(job.ConfigType),
			Status:     string(models.JobStatusFailed),
			Reason:     "retry budget exhausted",
		})
		logging.Log.WithField("job_id", job.ID).WithField("failed_attempts", failed).Info("Job failed terminally")
		return nil
	}

	attempt := job.LastAttempt()
	if attempt == nil || attempt.EndedAt == nil {
		// an INCOMPLETE job always has a finished attempt; skip rather than
		// guess
		logging.Log.WithField("job_id", job.ID).Warn("Incomplete job has no finished attempt")
		return nil
	}

	if r.nowFunc().Sub(*attempt.EndedAt) < r.Backoff(failed) {
		return nil
	}

	if err := r.store.ResetJob(ctx, job.ID); err != nil {
		return err
	}
	metrics.JobRetries.WithLabelValues(string(job.ConfigType)).Inc()
	logging.Log.WithField("job_id", job.ID).WithField("failed_attempts", failed).Info("Job rescheduled for retry")
	return nil
}

// Backoff returns the wait before retry number n+1: baseDelay doubled per
// prior failure, capped at maxDelay.
func (r *JobRetrier) Backoff(failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		return 0
	}
	d := r.baseDelay << (failedAttempts - 1)
	if d > r.maxDelay || d <= 0 {
		return r.maxDelay
	}
	return d
}
