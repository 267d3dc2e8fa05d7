// Package tracking emits product analytics events. The strategy is chosen at
// startup; the default logging strategy keeps events local.
package tracking

import (
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/google/uuid"
)

// Tracker records analytics events
type Tracker interface {
	Track(event string, properties map[string]interface{})
	Identify(role string)
}

// strategy names accepted in TRACKING_STRATEGY
const (
	StrategyLogging = "logging"
)

// NewTracker returns the tracker for the configured strategy. Unknown
// strategies fall back to logging.
func NewTracker(strategy, version string) Tracker {
	if strategy != StrategyLogging {
		logging.Log.WithField("strategy", strategy).Warn("Unknown tracking strategy, falling back to logging")
	}
	return &loggingTracker{
		deploymentID: uuid.New(),
		version:      version,
	}
}

// loggingTracker writes every event to the application log
type loggingTracker struct {
	deploymentID uuid.UUID
	version      string
}

func (t *loggingTracker) Track(event string, properties map[string]interface{}) {
	logging.Log.WithField("deployment_id", t.deploymentID).
		WithField("version", t.version).
		WithField("event", event).
		WithField("properties", properties).
		Info("Tracking event")
}

func (t *loggingTracker) Identify(role string) {
	logging.Log.WithField("deployment_id", t.deploymentID).
		WithField("role", role).
		Info("Tracking identify")
}

var _ Tracker = (*loggingTracker)(nil)
