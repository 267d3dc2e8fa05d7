package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Client talks to the workflow runtime over gRPC. Attempt execution itself
// happens through the runner; the gRPC side covers liveness and gives the
// runtime a chance to refuse work before a container is launched.
type Client struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	runner SyncRunner
	config Config

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Config holds the configuration for the workflow runtime client
type Config struct {
	HostPort string
	Timeout  time.Duration
}

// NewClient connects to the workflow runtime and wires in the runner that
// executes attempts
func NewClient(config Config, runner SyncRunner) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	conn, err := grpc.Dial(config.HostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to workflow runtime: %w", err)
	}

	return &Client{
		conn:     conn,
		health:   grpc_health_v1.NewHealthClient(conn),
		runner:   runner,
		config:   config,
		inFlight: make(map[string]struct{}),
	}, nil
}

// SubmitSync runs one attempt. The workflow identity makes the call
// idempotent: a second submission for an identity already in flight returns
// immediately without starting another worker.
func (c *Client) SubmitSync(ctx context.Context, input SyncInput) (*SyncOutput, error) {
	c.mu.Lock()
	if _, exists := c.inFlight[input.WorkflowID]; exists {
		c.mu.Unlock()
		logging.Log.WithField("workflow_id", input.WorkflowID).Warn("Duplicate workflow submission ignored")
		return nil, nil
	}
	c.inFlight[input.WorkflowID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, input.WorkflowID)
		c.mu.Unlock()
	}()

	logging.Log.WithField("workflow_id", input.WorkflowID).Info("Submitting sync workflow")
	return c.runner.Run(ctx, input)
}

// Healthy probes the runtime's gRPC health service
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("workflow runtime health check failed: %w", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("workflow runtime not serving: %s", resp.Status)
	}
	return nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)
