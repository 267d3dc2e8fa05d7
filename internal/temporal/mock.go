package temporal

import (
	"context"
	"sync"
)

// MockClient is a mock implementation of ClientInterface for testing
type MockClient struct {
	mu sync.Mutex

	// Control behavior
	SubmitSyncFunc func(ctx context.Context, input SyncInput) (*SyncOutput, error)
	HealthyFunc    func(ctx context.Context) error

	// Track calls for assertions
	SubmitSyncCalls []SyncInput
	Closed          bool
}

// NewMockClient creates a mock that succeeds with an empty output by default
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SubmitSync records the call and delegates to SubmitSyncFunc when set
func (m *MockClient) SubmitSync(ctx context.Context, input SyncInput) (*SyncOutput, error) {
	m.mu.Lock()
	m.SubmitSyncCalls = append(m.SubmitSyncCalls, input)
	fn := m.SubmitSyncFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, input)
	}
	return &SyncOutput{}, nil
}

// Healthy delegates to HealthyFunc when set, otherwise reports healthy
func (m *MockClient) Healthy(ctx context.Context) error {
	if m.HealthyFunc != nil {
		return m.HealthyFunc(ctx)
	}
	return nil
}

// Close records that the client was closed
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Submissions returns a copy of the recorded submissions
func (m *MockClient) Submissions() []SyncInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SyncInput, len(m.SubmitSyncCalls))
	copy(out, m.SubmitSyncCalls)
	return out
}

// Ensure MockClient implements ClientInterface
var _ ClientInterface = (*MockClient)(nil)
