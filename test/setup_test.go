package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/driftdata/driftsync/cmd"
	"github.com/driftdata/driftsync/internal/config"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/store/postgres_store"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestMain boots a throwaway postgres, migrates it and initializes the store
// for all tests in the package
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("driftsync_test"),
		postgres.WithUsername("devuser"),
		postgres.WithPassword("devpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		panic("Failed to start postgres container: " + err.Error())
	}

	uri, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic("Failed to get connection string: " + err.Error())
	}
	config.DbUri = uri
	os.Setenv("DATABASE_URL", uri)

	if err := cmd.RunMigrations(); err != nil {
		panic("Failed to run migrations: " + err.Error())
	}

	store.AppStore = postgres_store.PostgresStore
	deferredFunc, err := store.AppStore.Initialize()
	if err != nil {
		panic("Failed to initialize store: " + err.Error())
	}

	code := m.Run()

	if deferredFunc != nil {
		deferredFunc()
	}
	_ = container.Terminate(ctx)
	os.Exit(code)
}
