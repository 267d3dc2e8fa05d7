package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/driftdata/driftsync/internal/configrepo"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourlySchedule() *configrepo.Schedule {
	return &configrepo.Schedule{Units: 1, TimeUnit: configrepo.TimeUnitHours}
}

func TestSchedulerCreatesJobForConnectionThatNeverRan(t *testing.T) {
	fixture := newConnectionFixture(t, configrepo.StandardSync{
		Name:     "first run",
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	s := NewJobScheduler(mockStore, configrepo.NewRepository(fixture.root))

	s.Tick(context.Background())

	jobs, err := mockStore.ListJobsWithStatus(context.Background(), models.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, fixture.connectionID.String(), jobs[0].Scope)
	assert.Equal(t, models.ConfigTypeSync, jobs[0].ConfigType)
}

func TestSchedulerSkipsManualAndInactiveConnections(t *testing.T) {
	tests := []struct {
		name string
		sync configrepo.StandardSync
	}{
		{
			name: "manual connection",
			sync: configrepo.StandardSync{Status: configrepo.SyncStatusActive, Manual: true},
		},
		{
			name: "inactive connection",
			sync: configrepo.StandardSync{Status: configrepo.SyncStatusInactive, Schedule: hourlySchedule()},
		},
		{
			name: "active without schedule",
			sync: configrepo.StandardSync{Status: configrepo.SyncStatusActive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newConnectionFixture(t, tt.sync)
			mockStore := store.NewMockStore()
			s := NewJobScheduler(mockStore, configrepo.NewRepository(fixture.root))

			s.Tick(context.Background())

			jobs, err := mockStore.ListJobsWithStatus(context.Background(), models.JobStatusPending)
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestSchedulerRespectsCadence(t *testing.T) {
	fixture := newConnectionFixture(t, configrepo.StandardSync{
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	ctx := context.Background()

	// a terminal sync finished 30 minutes ago
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	mockStore.SetNowFunc(func() time.Time { return base })
	jobID, err := mockStore.EnqueueJob(ctx, fixture.connectionID.String(), models.ConfigTypeSync, nil)
	require.NoError(t, err)
	_, err = mockStore.CreateAttempt(ctx, *jobID, "logs.log")
	require.NoError(t, err)
	require.NoError(t, mockStore.SucceedAttempt(ctx, *jobID, 0, nil))

	s := NewJobScheduler(mockStore, configrepo.NewRepository(fixture.root))

	s.nowFunc = func() time.Time { return base.Add(30 * time.Minute) }
	s.Tick(ctx)
	pending, err := mockStore.ListJobsWithStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending, "no job before the interval elapses")

	s.nowFunc = func() time.Time { return base.Add(61 * time.Minute) }
	s.Tick(ctx)
	pending, err = mockStore.ListJobsWithStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "a job once the interval elapsed")
}

func TestSchedulerSuppressesDuplicateForActiveScope(t *testing.T) {
	fixture := newConnectionFixture(t, configrepo.StandardSync{
		Status:   configrepo.SyncStatusActive,
		Schedule: hourlySchedule(),
	})
	mockStore := store.NewMockStore()
	s := NewJobScheduler(mockStore, configrepo.NewRepository(fixture.root))
	ctx := context.Background()

	s.Tick(ctx)
	s.Tick(ctx)

	jobs, err := mockStore.ListJobsWithStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "the uniqueness guard suppresses the second job")
}
