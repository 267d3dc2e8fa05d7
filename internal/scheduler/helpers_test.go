package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/driftdata/driftsync/internal/configrepo"
	"github.com/driftdata/driftsync/internal/notifier"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records notifications for assertions
type fakeNotifier struct {
	mu            sync.Mutex
	notifications []notifier.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n notifier.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

func (f *fakeNotifier) all() []notifier.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notifier.Notification, len(f.notifications))
	copy(out, f.notifications)
	return out
}

// fakeTracker swallows tracking events
type fakeTracker struct{}

func (fakeTracker) Track(event string, properties map[string]interface{}) {}
func (fakeTracker) Identify(role string)                                  {}

// writeConfig drops a config object into the file-tree store layout
func writeConfig(t *testing.T, root string, kind configrepo.ConfigKind, id uuid.UUID, v interface{}) {
	t.Helper()
	dir := filepath.Join(root, string(kind))
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id.String()+".json"), data, 0644))
}

// connectionFixture is a fully wired connection in a temp config root
type connectionFixture struct {
	root         string
	connectionID uuid.UUID
}

// newConnectionFixture writes a connection plus its source and destination
// objects into a temp config root
func newConnectionFixture(t *testing.T, sync configrepo.StandardSync) connectionFixture {
	t.Helper()
	root := t.TempDir()

	sourceDefID := uuid.New()
	destDefID := uuid.New()
	if sync.ConnectionID == uuid.Nil {
		sync.ConnectionID = uuid.New()
	}
	if sync.SourceID == uuid.Nil {
		sync.SourceID = uuid.New()
	}
	if sync.DestinationID == uuid.Nil {
		sync.DestinationID = uuid.New()
	}
	if sync.Catalog == nil {
		sync.Catalog = json.RawMessage(`{"streams":[]}`)
	}

	writeConfig(t, root, configrepo.KindStandardSync, sync.ConnectionID, sync)
	writeConfig(t, root, configrepo.KindSourceConnection, sync.SourceID, configrepo.SourceConnection{
		SourceID:           sync.SourceID,
		SourceDefinitionID: sourceDefID,
		Name:               "test source",
		Configuration:      json.RawMessage(`{"host":"src"}`),
	})
	writeConfig(t, root, configrepo.KindDestinationConnection, sync.DestinationID, configrepo.DestinationConnection{
		DestinationID:           sync.DestinationID,
		DestinationDefinitionID: destDefID,
		Name:                    "test destination",
		Configuration:           json.RawMessage(`{"host":"dst"}`),
	})
	writeConfig(t, root, configrepo.KindSourceDefinition, sourceDefID, configrepo.SourceDefinition{
		SourceDefinitionID: sourceDefID,
		Name:               "source",
		DockerRepository:   "driftdata/source-test",
		DockerImageTag:     "0.1.0",
	})
	writeConfig(t, root, configrepo.KindDestinationDefinition, destDefID, configrepo.DestinationDefinition{
		DestinationDefinitionID: destDefID,
		Name:                    "destination",
		DockerRepository:        "driftdata/destination-test",
		DockerImageTag:          "0.1.0",
	})

	return connectionFixture{root: root, connectionID: sync.ConnectionID}
}
