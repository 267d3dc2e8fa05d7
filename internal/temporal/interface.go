// Package temporal is the scheduler's client onto the workflow runtime that
// executes sync attempts. The runtime deduplicates submissions by workflow
// identity, so resubmitting an attempt is safe.
package temporal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SyncInput carries everything an attempt needs to run
type SyncInput struct {
	// WorkflowID is the deterministic identity used for deduplication
	WorkflowID string

	JobID         int64
	AttemptNumber int

	// JobRoot is the attempt workspace directory
	JobRoot string

	SourceImage      string
	DestinationImage string

	SourceConfig      json.RawMessage
	DestinationConfig json.RawMessage
	Catalog           json.RawMessage
}

// SyncOutput summarizes a completed attempt
type SyncOutput struct {
	RecordsSynced int64           `json:"recordsSynced"`
	State         json.RawMessage `json:"state,omitempty"`
}

// ClientInterface defines the interface for workflow runtime operations
// This allows for easy mocking in tests
type ClientInterface interface {
	// SubmitSync runs one sync attempt to completion. Submitting the same
	// workflow identity twice is a no-op on the second call.
	SubmitSync(ctx context.Context, input SyncInput) (*SyncOutput, error)

	// Healthy probes the runtime's health endpoint
	Healthy(ctx context.Context) error

	// Close closes the connection
	Close() error
}

// WorkflowID derives the deterministic identity for an attempt
func WorkflowID(connectionID uuid.UUID, jobID int64, attemptNumber int) string {
	return fmt.Sprintf("connection-%s-%d-%d", connectionID, jobID, attemptNumber)
}
