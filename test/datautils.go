package test

import (
	"context"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/models"
	"github.com/google/uuid"
)

// newScope returns a fresh connection id so tests never collide on the
// one-active-job-per-scope guard
func newScope() string {
	return uuid.New().String()
}

// randomConfig builds a plausible job config blob
func randomConfig() models.JSONB {
	return models.JSONB{
		"connectionId": uuid.New().String(),
		"name":         gofakeit.AppName(),
	}
}

// mustEnqueue creates a PENDING job and fails the test flow on error
func mustEnqueue(ctx context.Context, scope string) (int64, error) {
	jobID, err := store.AppStore.EnqueueJob(ctx, scope, models.ConfigTypeSync, randomConfig())
	if err != nil {
		return 0, err
	}
	return *jobID, nil
}
