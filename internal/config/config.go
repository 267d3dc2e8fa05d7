package config

import (
	"strings"

	"github.com/catalystcommunity/app-utils-go/env"
)

// WorkerEnvironment selects the process factory variant.
const (
	WorkerEnvironmentDocker     = "DOCKER"
	WorkerEnvironmentKubernetes = "KUBERNETES"
)

var (
	// DbUri is the database connection string. Populated from the CLI flag
	// (DATABASE_URL).
	DbUri string

	DatabaseUser     = env.GetEnvOrDefault("DATABASE_USER", "")
	DatabasePassword = env.GetEnvOrDefault("DATABASE_PASSWORD", "")

	// WorkspaceRoot is the scheduler-visible root for per-attempt directories.
	WorkspaceRoot = env.GetEnvOrDefault("WORKSPACE_ROOT", "/tmp/driftsync/workspace")

	// LocalRoot is mounted into worker containers for local file staging.
	LocalRoot = env.GetEnvOrDefault("LOCAL_ROOT", "/tmp/driftsync/local")

	// ConfigRoot is the root of the read-only configuration store.
	ConfigRoot = env.GetEnvOrDefault("CONFIG_ROOT", "/tmp/driftsync/config")

	// WorkerEnvironment is DOCKER or KUBERNETES.
	WorkerEnvironment = strings.ToUpper(env.GetEnvOrDefault("WORKER_ENVIRONMENT", WorkerEnvironmentDocker))

	// TemporalHost is the workflow runtime frontend address.
	TemporalHost = env.GetEnvOrDefault("TEMPORAL_HOST", "localhost:7233")

	// TemporalWorkerPorts is the comma-separated bounded port pool handed to
	// the Kubernetes process factory.
	TemporalWorkerPorts = env.GetEnvOrDefault("TEMPORAL_WORKER_PORTS", "")

	// DriftsyncVersion is asserted against the persisted database version at startup.
	DriftsyncVersion = env.GetEnvOrDefault("DRIFTSYNC_VERSION", "dev")
	DriftsyncRole    = env.GetEnvOrDefault("DRIFTSYNC_ROLE", "")

	// TrackingStrategy is "logging" or "segment".
	TrackingStrategy = env.GetEnvOrDefault("TRACKING_STRATEGY", "logging")

	// Docker variant mounts and network. The *_DOCKER_MOUNT values name the
	// host-side paths when the scheduler itself runs inside a container.
	WorkspaceDockerMount = env.GetEnvOrDefault("WORKSPACE_DOCKER_MOUNT", "")
	LocalDockerMount     = env.GetEnvOrDefault("LOCAL_DOCKER_MOUNT", "")
	DockerNetwork        = env.GetEnvOrDefault("DOCKER_NETWORK", "host")

	// WebappUrl is the base URL used by the job notifier.
	WebappUrl = env.GetEnvOrDefault("WEBAPP_URL", "")

	// Retention bounds applied by the workspace cleaner.
	WorkspaceRetentionMinAgeHours = env.GetEnvAsIntOrDefault("WORKSPACE_RETENTION_MIN_AGE_HOURS", "1")
	WorkspaceRetentionMaxAgeHours = env.GetEnvAsIntOrDefault("WORKSPACE_RETENTION_MAX_AGE_HOURS", "720")
	WorkspaceRetentionMaxSizeMb   = env.GetEnvAsIntOrDefault("WORKSPACE_RETENTION_MAX_SIZE_MB", "5000")

	// Submitter worker pool size.
	MaxWorkers = env.GetEnvAsIntOrDefault("MAX_WORKERS", "4")

	// Graceful shutdown budget for in-flight attempts.
	GracefulShutdownSeconds = env.GetEnvAsIntOrDefault("GRACEFUL_SHUTDOWN_SECONDS", "30")
)
