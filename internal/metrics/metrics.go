package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftsync_jobs_created_total",
			Help: "Total number of jobs created",
		},
		[]string{"config_type"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftsync_jobs_completed_total",
			Help: "Total number of jobs reaching a terminal status",
		},
		[]string{"config_type", "status"},
	)

	AttemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftsync_attempts_started_total",
			Help: "Total number of attempts started",
		},
		[]string{"config_type"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftsync_attempt_duration_seconds",
			Help:    "Time taken by one attempt",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~8 hours
		},
		[]string{"config_type", "status"},
	)

	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftsync_job_retries_total",
			Help: "Total number of attempts rescheduled by the retrier",
		},
		[]string{"config_type"},
	)

	ZombieJobsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftsync_zombie_jobs_reaped_total",
			Help: "Total number of zombie jobs cancelled at startup",
		},
	)

	// Queue metrics
	PendingJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftsync_pending_jobs",
			Help: "Current number of jobs waiting to be submitted",
		},
	)

	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftsync_workers_active",
			Help: "Number of attempts currently running in the worker pool",
		},
	)

	// Heartbeat metrics
	HeartbeatRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftsync_heartbeat_requests_total",
			Help: "Total number of heartbeat probes answered",
		},
	)

	// Workspace metrics
	WorkspaceBytesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftsync_workspace_bytes_deleted_total",
			Help: "Total bytes removed by the workspace cleaner",
		},
	)

	// Resource metrics
	SchedulerCPUUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftsync_scheduler_cpu_usage_percent",
			Help: "Current CPU usage percentage of the scheduler process",
		},
	)

	SchedulerMemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftsync_scheduler_memory_usage_bytes",
			Help: "Current memory usage of the scheduler process in bytes",
		},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordJobCompleted records a job reaching a terminal status
func RecordJobCompleted(configType, status string) {
	JobsCompleted.WithLabelValues(configType, status).Inc()
}

// RecordAttempt records an attempt start
func RecordAttempt(configType string) {
	AttemptsStarted.WithLabelValues(configType).Inc()
}

// RecordAttemptDuration records how long an attempt ran
func RecordAttemptDuration(configType, status string, seconds float64) {
	AttemptDuration.WithLabelValues(configType, status).Observe(seconds)
}

// UpdateResourceUsage updates the scheduler resource gauges
func UpdateResourceUsage(cpuPercent, memoryBytes float64) {
	SchedulerCPUUsage.Set(cpuPercent)
	SchedulerMemoryUsage.Set(memoryBytes)
}
