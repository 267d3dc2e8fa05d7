package store

import (
	"context"

	"github.com/driftdata/driftsync/internal/store/models"
)

// AppStore is the process-wide job persistence, set once at startup.
var AppStore JobPersistence

// JobPersistence is the transactional store of jobs, attempts and metadata.
// Every operation is a single database transaction; it is the only permitted
// writer of job and attempt state.
type JobPersistence interface {
	Initialize() (deferredFunc func(), err error)

	// EnqueueJob creates a PENDING job for the scope. It returns nil (no
	// error) when a non-terminal job of the same config type already exists
	// for that scope.
	EnqueueJob(ctx context.Context, scope string, configType models.ConfigType, config models.JSONB) (*int64, error)

	// CreateAttempt adds the next attempt and transitions the job to RUNNING.
	// It fails with ErrInvalidState unless the job is PENDING or INCOMPLETE.
	CreateAttempt(ctx context.Context, jobID int64, logPath string) (int, error)

	// FailAttempt marks the attempt FAILED and the job INCOMPLETE. Whether
	// the job becomes terminally FAILED is the retrier's decision.
	FailAttempt(ctx context.Context, jobID int64, attemptNumber int) error

	// SucceedAttempt marks the attempt SUCCEEDED and the job SUCCEEDED.
	SucceedAttempt(ctx context.Context, jobID int64, attemptNumber int, output models.JSONB) error

	// CancelJob marks the job CANCELLED; a RUNNING attempt is failed with
	// endedAt=now. No-op when the job is already terminal.
	CancelJob(ctx context.Context, jobID int64) error

	// FailJob marks the job terminally FAILED; used when the retry budget is
	// exhausted.
	FailJob(ctx context.Context, jobID int64) error

	// ResetJob transitions an INCOMPLETE job back to PENDING so the submitter
	// can pick it up again.
	ResetJob(ctx context.Context, jobID int64) error

	GetJob(ctx context.Context, jobID int64) (*models.Job, error)

	// ListJobsWithStatus returns jobs with the given status ordered by
	// created_at ascending, attempts preloaded.
	ListJobsWithStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error)

	// ListJobs is the paginated listing backing the API surface.
	ListJobs(ctx context.Context, configType models.ConfigType, scope string, limit, offset int) ([]models.Job, error)

	// GetNextJob returns the oldest PENDING job whose scope has no RUNNING
	// job, or nil. Uses row-level locking so concurrent submitters never
	// receive the same job.
	GetNextJob(ctx context.Context) (*models.Job, error)

	// GetLastReplicationJob returns the most recent terminal SYNC job for the
	// scope, or nil when the connection has never synced.
	GetLastReplicationJob(ctx context.Context, scope string) (*models.Job, error)

	// GetVersion returns the persisted platform version, or "" when the
	// config server has not written it yet.
	GetVersion(ctx context.Context) (string, error)
	SetVersion(ctx context.Context, version string) error
}
