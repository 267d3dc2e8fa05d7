package scheduler

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/internal/config"
	"github.com/driftdata/driftsync/internal/configrepo"
	"github.com/driftdata/driftsync/internal/heartbeat"
	"github.com/driftdata/driftsync/internal/notifier"
	"github.com/driftdata/driftsync/internal/process"
	"github.com/driftdata/driftsync/internal/store"
	"github.com/driftdata/driftsync/internal/temporal"
	"github.com/driftdata/driftsync/internal/tracking"
	"github.com/driftdata/driftsync/internal/version"
)

const (
	dispatchInterval = 5 * time.Second
	cleanerInterval  = 2 * time.Hour
	monitorInterval  = 30 * time.Second

	// how long startup waits for the config server to run migrations and
	// record a version
	versionWaitTimeout  = 300 * time.Second
	versionWaitInterval = 2 * time.Second
)

// App drives the scheduler's lifecycle: startup sequencing, the periodic
// loops, and graceful shutdown.
type App struct {
	store     store.JobPersistence
	scheduler *JobScheduler
	retrier   *JobRetrier
	submitter *JobSubmitter
	cleaner   *WorkspaceCleaner
	reaper    *ZombieReaper
	monitor   *ResourceMonitor
	heartbeat *heartbeat.Server
	factory   process.Factory
	workflows temporal.ClientInterface

	loops sync.WaitGroup
}

// NewApp assembles the scheduler from the environment configuration
func NewApp(persistence store.JobPersistence) (*App, error) {
	factory, err := buildProcessFactory()
	if err != nil {
		return nil, err
	}

	runner := temporal.NewProcessSyncRunner(factory)
	workflows, err := temporal.NewClient(temporal.Config{HostPort: config.TemporalHost}, runner)
	if err != nil {
		factory.Close()
		return nil, err
	}

	configs := configrepo.NewRepository(config.ConfigRoot)
	tracker := tracking.NewTracker(config.TrackingStrategy, config.DriftsyncVersion)
	jobNotifier := notifier.NewWebappNotifier(config.WebappUrl)

	app := &App{
		store:     persistence,
		scheduler: NewJobScheduler(persistence, configs),
		retrier:   NewJobRetrier(persistence, jobNotifier),
		submitter: NewJobSubmitter(persistence, configs, workflows, tracker, jobNotifier, config.MaxWorkers, config.WorkspaceRoot),
		cleaner: NewWorkspaceCleaner(persistence, config.WorkspaceRoot, RetentionConfig{
			MinAge:  time.Duration(config.WorkspaceRetentionMinAgeHours) * time.Hour,
			MaxAge:  time.Duration(config.WorkspaceRetentionMaxAgeHours) * time.Hour,
			MaxSize: int64(config.WorkspaceRetentionMaxSizeMb) * 1024 * 1024,
		}),
		reaper:    NewZombieReaper(persistence, jobNotifier),
		monitor:   NewResourceMonitor(monitorInterval),
		factory:   factory,
		workflows: workflows,
	}
	if config.WorkerEnvironment == config.WorkerEnvironmentKubernetes {
		app.heartbeat = heartbeat.NewServer(heartbeat.DefaultPort)
	}

	tracker.Identify(config.DriftsyncRole)
	return app, nil
}

// Run executes the startup sequence and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	// the config server owns migrations; wait for it to record a version
	dbVersion, err := a.waitForVersion(ctx)
	if err != nil {
		return err
	}
	if err := version.CheckCompatibility(config.DriftsyncVersion, dbVersion); err != nil {
		return err
	}
	logging.Log.WithField("version", config.DriftsyncVersion).WithField("db_version", dbVersion).Info("Version check passed")

	if a.heartbeat != nil {
		a.heartbeat.StartBackground()
	}

	// must complete before the dispatch loop starts, so stale RUNNING jobs
	// cannot be handed to workers
	if err := a.reaper.Run(ctx); err != nil {
		return fmt.Errorf("zombie reaper failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.monitor.Run(ctx)
	a.loops.Add(2)
	go func() {
		defer a.loops.Done()
		a.loop(ctx, "cleaner", cleanerInterval, a.cleaner.Tick)
	}()
	go func() {
		defer a.loops.Done()
		a.loop(ctx, "dispatch", dispatchInterval, func(ctx context.Context) {
			a.retrier.Tick(ctx)
			a.scheduler.Tick(ctx)
			a.submitter.Tick(ctx)
		})
	}()

	logging.Log.Info("Scheduler started")
	<-ctx.Done()
	logging.Log.Info("Shutdown signal received")

	a.shutdown()
	return nil
}

// loop runs fn on a fixed delay: a slow tick never stacks ticks
func (a *App) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			logging.Log.WithField("loop", name).Debug("Loop stopped")
			return
		case <-time.After(interval):
		}
	}
}

func (a *App) waitForVersion(ctx context.Context) (string, error) {
	deadline := time.Now().Add(versionWaitTimeout)
	for {
		v, err := a.store.GetVersion(ctx)
		if err != nil {
			logging.Log.WithError(err).Warn("Failed to read persisted version")
		} else if v != "" {
			return v, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out waiting for database version; has the config server run migrations?")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(versionWaitInterval):
		}
	}
}

func (a *App) shutdown() {
	// a tick still in flight could race pool.Submit against the pool stopping
	a.loops.Wait()

	grace := time.Duration(config.GracefulShutdownSeconds) * time.Second
	a.submitter.StopWait(grace)

	if a.heartbeat != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.heartbeat.Stop(ctx); err != nil {
			logging.Log.WithError(err).Warn("Heartbeat server did not stop cleanly")
		}
	}
	if err := a.workflows.Close(); err != nil {
		logging.Log.WithError(err).Warn("Workflow client did not close cleanly")
	}
	if err := a.factory.Close(); err != nil {
		logging.Log.WithError(err).Warn("Process factory did not close cleanly")
	}
	logging.Log.Info("Scheduler stopped")
}

// buildProcessFactory picks the Docker or Kubernetes variant from the
// environment
func buildProcessFactory() (process.Factory, error) {
	switch config.WorkerEnvironment {
	case config.WorkerEnvironmentDocker:
		return process.NewDockerProcessFactory(config.WorkspaceRoot, config.WorkspaceDockerMount, config.LocalDockerMount, config.DockerNetwork)
	case config.WorkerEnvironmentKubernetes:
		ports, err := parseWorkerPorts(config.TemporalWorkerPorts)
		if err != nil {
			return nil, err
		}
		return process.NewKubeProcessFactory(process.KubeProcessFactoryConfig{
			HeartbeatURL: heartbeatURL(),
			WorkerPorts:  ports,
		})
	default:
		return nil, fmt.Errorf("unknown worker environment %q", config.WorkerEnvironment)
	}
}

func parseWorkerPorts(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("TEMPORAL_WORKER_PORTS is required in the Kubernetes worker environment")
	}
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		port, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid worker port %q: %w", part, err)
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// heartbeatURL is the scheduler address worker sidecars probe
func heartbeatURL() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(heartbeat.DefaultPort))
}
