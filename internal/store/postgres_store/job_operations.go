package postgres_store

import (
	"context"
	"fmt"
	"time"

	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
	"gorm.io/gorm"
)

// EnqueueJob creates a PENDING job for the scope. The uniqueness guard is
// evaluated inside the same transaction: if a non-terminal job of the same
// config type already exists for the scope, no job is created and a nil id
// is returned.
func (ps PostgresDbStore) EnqueueJob(ctx context.Context, scope string, configType models.ConfigType, jobConfig models.JSONB) (*int64, error) {
	var jobID *int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Job{}).
			Where("scope = ? AND config_type = ? AND status NOT IN ?", scope, configType, models.TerminalStatuses()).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check for existing non-terminal job: %w", err)
		}
		if count > 0 {
			return nil
		}

		job := models.Job{
			Scope:      scope,
			ConfigType: configType,
			Config:     jobConfig,
			Status:     models.JobStatusPending,
		}
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		jobID = &job.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobID, nil
}

// GetJob retrieves a job with its attempts
func (ps PostgresDbStore) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	var job models.Job
	if err := db.WithContext(ctx).Preload("Attempts").First(&job, jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %d: %w", jobID, err)
	}
	return &job, nil
}

// ListJobsWithStatus retrieves all jobs with the given status, oldest first
func (ps PostgresDbStore) ListJobsWithStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	var jobs []models.Job
	if err := db.WithContext(ctx).Preload("Attempts").
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs with status %s: %w", status, err)
	}
	return jobs, nil
}

// ListJobs retrieves jobs for a config type and scope with pagination,
// newest first
func (ps PostgresDbStore) ListJobs(ctx context.Context, configType models.ConfigType, scope string, limit, offset int) ([]models.Job, error) {
	var jobs []models.Job
	query := db.WithContext(ctx).Preload("Attempts").
		Where("config_type = ?", configType)
	if scope != "" {
		query = query.Where("scope = ?", scope)
	}
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// GetNextJob returns the oldest PENDING job whose scope has no RUNNING job.
// The row is locked with FOR UPDATE SKIP LOCKED so concurrent submitters
// never hand the same job to two workers.
func (ps PostgresDbStore) GetNextJob(ctx context.Context) (*models.Job, error) {
	var job *models.Job
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate models.Job
		result := tx.Raw(`
			SELECT * FROM jobs j
			WHERE j.status = ?
			  AND NOT EXISTS (
			    SELECT 1 FROM jobs r
			    WHERE r.scope = j.scope AND r.status = ?
			  )
			ORDER BY j.created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`,
			models.JobStatusPending, models.JobStatusRunning).Scan(&candidate)
		if result.Error != nil {
			return fmt.Errorf("failed to get next job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Preload("Attempts").First(&candidate, candidate.ID).Error; err != nil {
			return fmt.Errorf("failed to load attempts for job %d: %w", candidate.ID, err)
		}
		job = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetLastReplicationJob returns the most recent terminal SYNC job for the
// scope, used for cadence computation. Returns nil when the connection has
// never completed a sync.
func (ps PostgresDbStore) GetLastReplicationJob(ctx context.Context, scope string) (*models.Job, error) {
	var job models.Job
	err := db.WithContext(ctx).Preload("Attempts").
		Where("scope = ? AND config_type = ? AND status IN ?", scope, models.ConfigTypeSync, models.TerminalStatuses()).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last replication job for scope %s: %w", scope, err)
	}
	return &job, nil
}

// CancelJob marks the job CANCELLED and fails any RUNNING attempt. Terminal
// jobs are left untouched.
func (ps PostgresDbStore) CancelJob(ctx context.Context, jobID int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}
		if job.IsTerminal() {
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Attempt{}).
			Where("job_id = ? AND status = ?", jobID, models.AttemptStatusRunning).
			Updates(map[string]interface{}{
				"status":     models.AttemptStatusFailed,
				"updated_at": now,
				"ended_at":   now,
			}).Error; err != nil {
			return fmt.Errorf("failed to fail running attempts of job %d: %w", jobID, err)
		}

		return setJobStatus(tx, jobID, models.JobStatusCancelled)
	})
}

// FailJob marks the job terminally FAILED
func (ps PostgresDbStore) FailJob(ctx context.Context, jobID int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}
		if job.IsTerminal() {
			return store.ErrInvalidState
		}
		return setJobStatus(tx, jobID, models.JobStatusFailed)
	})
}

// ResetJob transitions an INCOMPLETE job back to PENDING
func (ps PostgresDbStore) ResetJob(ctx context.Context, jobID int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != models.JobStatusIncomplete {
			return store.ErrInvalidState
		}
		return setJobStatus(tx, jobID, models.JobStatusPending)
	})
}

// lockJob loads a job row FOR UPDATE inside the transaction
func lockJob(tx *gorm.DB, jobID int64) (*models.Job, error) {
	var job models.Job
	result := tx.Raw(`SELECT * FROM jobs WHERE id = ? FOR UPDATE`, jobID).Scan(&job)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to lock job %d: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return &job, nil
}

func setJobStatus(tx *gorm.DB, jobID int64, status models.JobStatus) error {
	if err := tx.Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("failed to set job %d status to %s: %w", jobID, status, err)
	}
	return nil
}
