package postgres_store

import (
	"context"
	"fmt"
	"time"

	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
	"gorm.io/gorm"
)

// CreateAttempt adds the next attempt for the job and transitions it to
// RUNNING. The job must be PENDING or INCOMPLETE; the dense attempt number is
// derived from the current count inside the same transaction.
func (ps PostgresDbStore) CreateAttempt(ctx context.Context, jobID int64, logPath string) (int, error) {
	var attemptNumber int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != models.JobStatusPending && job.Status != models.JobStatusIncomplete {
			return fmt.Errorf("cannot create attempt for job %d in status %s: %w", jobID, job.Status, store.ErrInvalidState)
		}

		var count int64
		if err := tx.Model(&models.Attempt{}).Where("job_id = ?", jobID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count attempts for job %d: %w", jobID, err)
		}
		attemptNumber = int(count)

		attempt := models.Attempt{
			JobID:         jobID,
			AttemptNumber: attemptNumber,
			Status:        models.AttemptStatusRunning,
			LogPath:       logPath,
		}
		if err := tx.Create(&attempt).Error; err != nil {
			return fmt.Errorf("failed to create attempt %d for job %d: %w", attemptNumber, jobID, err)
		}

		return setJobStatus(tx, jobID, models.JobStatusRunning)
	})
	if err != nil {
		return 0, err
	}
	return attemptNumber, nil
}

// FailAttempt marks the attempt FAILED and the job INCOMPLETE. The retrier
// decides separately whether the job becomes terminally FAILED.
func (ps PostgresDbStore) FailAttempt(ctx context.Context, jobID int64, attemptNumber int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}

		if err := endAttempt(tx, jobID, attemptNumber, models.AttemptStatusFailed, nil); err != nil {
			return err
		}

		// A cancel may have raced the completion; terminal statuses win.
		if job.IsTerminal() {
			return nil
		}
		return setJobStatus(tx, jobID, models.JobStatusIncomplete)
	})
}

// SucceedAttempt marks the attempt SUCCEEDED with its output and the job
// terminally SUCCEEDED.
func (ps PostgresDbStore) SucceedAttempt(ctx context.Context, jobID int64, attemptNumber int, output models.JSONB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}

		if err := endAttempt(tx, jobID, attemptNumber, models.AttemptStatusSucceeded, output); err != nil {
			return err
		}

		if job.IsTerminal() {
			return nil
		}
		return setJobStatus(tx, jobID, models.JobStatusSucceeded)
	})
}

func endAttempt(tx *gorm.DB, jobID int64, attemptNumber int, status models.AttemptStatus, output models.JSONB) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
		"ended_at":   now,
	}
	if output != nil {
		updates["output"] = output
	}
	result := tx.Model(&models.Attempt{}).
		Where("job_id = ? AND attempt_number = ?", jobID, attemptNumber).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to end attempt %d of job %d: %w", attemptNumber, jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
