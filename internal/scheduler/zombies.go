package scheduler

import (
	"context"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/metrics"
	"github.com/driftdata/driftsync/internal/notifier"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
)

// zombieReason is the notification reason for jobs cancelled by the reaper
const zombieReason = "zombie job was cancelled"

// ZombieReaper cancels jobs left RUNNING by a previous scheduler process.
// No live worker holds them, but failure attribution is ambiguous, so they
// become CANCELLED rather than FAILED. It must finish before the dispatch
// loop starts.
type ZombieReaper struct {
	store    store.JobPersistence
	notifier notifier.Notifier
}

// NewZombieReaper creates a reaper over the given store
func NewZombieReaper(persistence store.JobPersistence, n notifier.Notifier) *ZombieReaper {
	return &ZombieReaper{store: persistence, notifier: n}
}

// Run cancels every RUNNING job, failing its open attempt
func (z *ZombieReaper) Run(ctx context.Context) error {
	jobs, err := z.store.ListJobsWithStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return err
	}

	for i := range jobs {
		job := &jobs[i]
		if err := z.store.CancelJob(ctx, job.ID); err != nil {
			logging.Log.WithError(err).WithField("job_id", job.ID).Error("Failed to cancel zombie job")
			continue
		}
		metrics.ZombieJobsReaped.Inc()
		z.notifier.Notify(ctx, notifier.Notification{
			JobID:      job.ID,
			Scope:      job.Scope,
			ConfigType: string(job.ConfigType),
			Status:     string(models.JobStatusCancelled),
			Reason:     zombieReason,
		})
		logging.Log.WithField("job_id", job.ID).Warn("Cancelled zombie job")
	}

	if len(jobs) > 0 {
		logging.Log.WithField("count", len(jobs)).Info("Zombie reaper finished")
	}
	return nil
}
