package scheduler

import (
	"context"
	"testing"

	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZombieReaperCancelsRunningJobs(t *testing.T) {
	mockStore := store.NewMockStore()
	ctx := context.Background()

	jobID, err := mockStore.EnqueueJob(ctx, "aa6f2f60-28a4-4f5e-b7cb-12f48bbf60a2", models.ConfigTypeSync, nil)
	require.NoError(t, err)
	_, err = mockStore.CreateAttempt(ctx, *jobID, "logs.log")
	require.NoError(t, err)

	doneID, err := mockStore.EnqueueJob(ctx, "bb6f2f60-28a4-4f5e-b7cb-12f48bbf60a2", models.ConfigTypeSync, nil)
	require.NoError(t, err)
	_, err = mockStore.CreateAttempt(ctx, *doneID, "logs.log")
	require.NoError(t, err)
	require.NoError(t, mockStore.SucceedAttempt(ctx, *doneID, 0, nil))

	n := &fakeNotifier{}
	reaper := NewZombieReaper(mockStore, n)
	require.NoError(t, reaper.Run(ctx))

	zombie, err := mockStore.GetJob(ctx, *jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, zombie.Status)
	require.Len(t, zombie.Attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, zombie.Attempts[0].Status)
	require.NotNil(t, zombie.Attempts[0].EndedAt)

	// terminal jobs are untouched
	done, err := mockStore.GetJob(ctx, *doneID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, done.Status)

	notifications := n.all()
	require.Len(t, notifications, 1)
	assert.Equal(t, *jobID, notifications[0].JobID)
	assert.Equal(t, "zombie job was cancelled", notifications[0].Reason)
}

func TestZombieReaperNoRunningJobs(t *testing.T) {
	mockStore := store.NewMockStore()
	n := &fakeNotifier{}
	reaper := NewZombieReaper(mockStore, n)

	require.NoError(t, reaper.Run(context.Background()))
	assert.Empty(t, n.all())
}
