package process

import (
	"context"
	"fmt"
	"os"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// KubeProcessFactory launches worker pods in the cluster the scheduler runs
// in. Each pod carries a heartbeat sidecar pointed at the scheduler's
// heartbeat endpoint, so pods orphaned by a scheduler crash terminate
// themselves instead of running forever.
type KubeProcessFactory struct {
	clientset    kubernetes.Interface
	restConfig   *rest.Config
	namespace    string
	heartbeatURL string
	ports        *PortPool
}

// KubeProcessFactoryConfig holds configuration for the Kubernetes factory
type KubeProcessFactoryConfig struct {
	Namespace    string // namespace for worker pods (default: current namespace)
	HeartbeatURL string // scheduler heartbeat endpoint, host:port
	WorkerPorts  []int  // node ports available for stdin/stdout plumbing
}

// NewKubeProcessFactory creates a factory using the in-cluster config
func NewKubeProcessFactory(cfg KubeProcessFactoryConfig) (*KubeProcessFactory, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-cluster config (is this running in Kubernetes?): %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return NewKubeProcessFactoryWithClient(clientset, restConfig, cfg)
}

// NewKubeProcessFactoryWithClient creates a factory with a custom clientset,
// useful for tests
func NewKubeProcessFactoryWithClient(clientset kubernetes.Interface, restConfig *rest.Config, cfg KubeProcessFactoryConfig) (*KubeProcessFactory, error) {
	namespace := cfg.Namespace
	if namespace == "" {
		nsBytes, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace")
		if err != nil {
			namespace = "default"
		} else {
			namespace = strings.TrimSpace(string(nsBytes))
		}
	}

	pool, err := NewPortPool(cfg.WorkerPorts)
	if err != nil {
		return nil, err
	}

	return &KubeProcessFactory{
		clientset:    clientset,
		restConfig:   restConfig,
		namespace:    namespace,
		heartbeatURL: cfg.HeartbeatURL,
		ports:        pool,
	}, nil
}

// Create launches a worker pod. It blocks while the port pool is exhausted,
// which bounds the number of concurrent pods.
func (f *KubeProcessFactory) Create(ctx context.Context, spec CreateSpec) (Process, error) {
	port, err := f.ports.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire worker port: %w", err)
	}

	proc, err := launchKubePod(ctx, f.clientset, f.restConfig, f.namespace, f.heartbeatURL, port, spec)
	if err != nil {
		f.ports.Release(port)
		return nil, err
	}
	proc.releasePort = func() { f.ports.Release(port) }
	return proc, nil
}

// Close is a no-op; the clientset holds no resources needing release
func (f *KubeProcessFactory) Close() error {
	return nil
}

// IsKubernetesEnvironment reports whether the process runs inside a cluster
func IsKubernetesEnvironment() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}

var _ Factory = (*KubeProcessFactory)(nil)
