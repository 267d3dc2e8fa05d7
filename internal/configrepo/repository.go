package configrepo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Repository is a read-through accessor over the file-tree config store.
// The tree is owned by the config server; the scheduler only reads it.
type Repository struct {
	configRoot string
}

// NewRepository creates a repository rooted at configRoot
func NewRepository(configRoot string) *Repository {
	return &Repository{configRoot: configRoot}
}

// ErrConfigNotFound is returned when the requested object file is missing
type ErrConfigNotFound struct {
	Kind ConfigKind
	ID   uuid.UUID
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config %s/%s not found", e.Kind, e.ID)
}

func (r *Repository) read(kind ConfigKind, id uuid.UUID, out interface{}) error {
	path := filepath.Join(r.configRoot, string(kind), id.String()+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ErrConfigNotFound{Kind: kind, ID: id}
		}
		return fmt.Errorf("failed to read config %s/%s: %w", kind, id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config %s/%s: %w", kind, id, err)
	}
	return nil
}

// list decodes every <uuid>.json file under the kind's directory. Files with
// non-UUID names are skipped; a missing directory yields an empty list.
func (r *Repository) list(kind ConfigKind, decode func([]byte) error) error {
	dir := filepath.Join(r.configRoot, string(kind))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list configs of kind %s: %w", kind, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json")); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", entry.Name(), err)
		}
		if err := decode(data); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// ListStandardSyncs returns every connection in the store
func (r *Repository) ListStandardSyncs() ([]StandardSync, error) {
	var syncs []StandardSync
	err := r.list(KindStandardSync, func(data []byte) error {
		var s StandardSync
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		syncs = append(syncs, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return syncs, nil
}

// GetStandardSync returns the connection with the given ID
func (r *Repository) GetStandardSync(connectionID uuid.UUID) (*StandardSync, error) {
	var s StandardSync
	if err := r.read(KindStandardSync, connectionID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSourceConnection returns the source configuration referenced by a connection
func (r *Repository) GetSourceConnection(sourceID uuid.UUID) (*SourceConnection, error) {
	var s SourceConnection
	if err := r.read(KindSourceConnection, sourceID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetDestinationConnection returns the destination configuration referenced by a connection
func (r *Repository) GetDestinationConnection(destinationID uuid.UUID) (*DestinationConnection, error) {
	var d DestinationConnection
	if err := r.read(KindDestinationConnection, destinationID, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetSourceDefinition returns the connector definition for a source
func (r *Repository) GetSourceDefinition(definitionID uuid.UUID) (*SourceDefinition, error) {
	var d SourceDefinition
	if err := r.read(KindSourceDefinition, definitionID, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDestinationDefinition returns the connector definition for a destination
func (r *Repository) GetDestinationDefinition(definitionID uuid.UUID) (*DestinationDefinition, error) {
	var d DestinationDefinition
	if err := r.read(KindDestinationDefinition, definitionID, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
