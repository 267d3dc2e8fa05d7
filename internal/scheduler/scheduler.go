// Package scheduler holds the periodic machinery that turns connection
// configuration into jobs, jobs into attempts, and attempts into worker
// containers.
package scheduler

import (
	"context"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/configrepo"
	"github.com/driftdata/driftsync/internal/metrics"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
)

// JobScheduler creates a PENDING sync job for every active connection whose
// schedule is due. Duplicate creation is suppressed by the persistence
// uniqueness guard, so a tick is safe to rerun at any time.
type JobScheduler struct {
	store   store.JobPersistence
	configs *configrepo.Repository
	nowFunc func() time.Time
}

// NewJobScheduler creates a scheduler over the given store and config repo
func NewJobScheduler(persistence store.JobPersistence, configs *configrepo.Repository) *JobScheduler {
	return &JobScheduler{
		store:   persistence,
		configs: configs,
		nowFunc: time.Now,
	}
}

// Tick evaluates every connection once. Per-connection errors are logged and
// the tick proceeds with the rest.
func (s *JobScheduler) Tick(ctx context.Context) {
	syncs, err := s.configs.ListStandardSyncs()
	if err != nil {
		logging.Log.WithError(err).Error("Failed to list connections")
		return
	}

	for i := range syncs {
		sync := &syncs[i]
		if err := s.scheduleConnection(ctx, sync); err != nil {
			logging.Log.WithError(err).
				WithField("connection_id", sync.ConnectionID).
				Error("Failed to schedule connection")
		}
	}
}

func (s *JobScheduler) scheduleConnection(ctx context.Context, sync *configrepo.StandardSync) error {
	if sync.Status != configrepo.SyncStatusActive {
		return nil
	}
	if sync.Manual || sync.Schedule == nil {
		return nil
	}

	interval, err := sync.Schedule.Interval()
	if err != nil {
		return err
	}

	scope := sync.ConnectionID.String()
	last, err := s.store.GetLastReplicationJob(ctx, scope)
	if err != nil {
		return err
	}

	// A connection that never ran is due immediately.
	tLast := time.Time{}
	if last != nil {
		tLast = lastActivity(last)
	}

	if s.nowFunc().Sub(tLast) < interval {
		return nil
	}

	jobID, err := s.store.EnqueueJob(ctx, scope, models.ConfigTypeSync, models.JSONB{
		"connectionId": scope,
		"name":         sync.Name,
	})
	if err != nil {
		return err
	}
	if jobID == nil {
		// a non-terminal job already covers this scope
		return nil
	}

	metrics.JobsCreated.WithLabelValues(string(models.ConfigTypeSync)).Inc()
	logging.Log.WithField("connection_id", scope).WithField("job_id", *jobID).Info("Created scheduled sync job")
	return nil
}

// lastActivity is the job's endedAt for cadence purposes: the last attempt's
// end when present, the job's update time otherwise.
func lastActivity(job *models.Job) time.Time {
	if attempt := job.LastAttempt(); attempt != nil && attempt.EndedAt != nil {
		return *attempt.EndedAt
	}
	return job.UpdatedAt
}
