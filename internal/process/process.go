// Package process launches short-lived worker containers, either as local
// Docker containers or as ephemeral pods in a Kubernetes cluster. Both
// variants expose the same POSIX-like Process handle.
package process

import (
	"context"
	"fmt"
	"io"
)

// Process is a handle on a launched worker container. Its contract matches a
// POSIX process: streams, wait, exit code, kill.
type Process interface {
	// Stdin returns the write side of the process stdin, or nil when the
	// process was created without stdin.
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader

	// WaitFor blocks until the process exits or the context is cancelled.
	WaitFor(ctx context.Context) error

	// ExitValue returns the exit code. It is only valid after WaitFor has
	// returned without error.
	ExitValue() (int, error)

	// Destroy kills the process and releases its resources.
	Destroy(ctx context.Context) error

	IsAlive(ctx context.Context) bool
}

// CreateSpec describes a worker container to launch.
type CreateSpec struct {
	JobID         string
	AttemptNumber int

	// JobRoot is the attempt workspace directory on the scheduler host.
	JobRoot string

	ImageName string
	UsesStdin bool

	// Files maps filename to contents; they are materialized in the
	// container working directory before the entrypoint starts.
	Files map[string]string

	Entrypoint string
	Args       []string
}

// Factory launches worker containers.
type Factory interface {
	Create(ctx context.Context, spec CreateSpec) (Process, error)
	Close() error
}

// workerName derives the container/pod name from the job and attempt.
func workerName(jobID string, attemptNumber int) string {
	return fmt.Sprintf("%s-%d", jobID, attemptNumber)
}

// exit codes worth naming: 127 is the POSIX "command not found" code, also
// inferred for pods that never managed to start their image.
const (
	exitCodeSuccess         = 0
	exitCodeCommandNotFound = 127
)
