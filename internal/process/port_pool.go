package process

import (
	"context"
	"fmt"
)

// PortPool hands out node ports to worker pods. The pool is bounded: Acquire
// blocks when every port is leased, which is the back-pressure mechanism
// capping the number of concurrent pods.
type PortPool struct {
	ports chan int
	size  int
}

// NewPortPool creates a pool preloaded with the given ports
func NewPortPool(ports []int) (*PortPool, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("port pool requires at least one port")
	}
	ch := make(chan int, len(ports))
	for _, p := range ports {
		ch <- p
	}
	return &PortPool{ports: ch, size: len(ports)}, nil
}

// Acquire takes a port from the pool, blocking until one is available or the
// context is cancelled.
func (p *PortPool) Acquire(ctx context.Context) (int, error) {
	select {
	case port := <-p.ports:
		return port, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Release returns a port to the pool. Releasing a port that was never part
// of the pool would grow it, so callers must only return acquired ports.
func (p *PortPool) Release(port int) {
	select {
	case p.ports <- port:
	default:
		// more releases than acquires is a programming error; drop rather
		// than block the caller
	}
}

// Size returns the pool capacity
func (p *PortPool) Size() int {
	return p.size
}

// Available returns the number of ports currently free
func (p *PortPool) Available() int {
	return len(p.ports)
}
