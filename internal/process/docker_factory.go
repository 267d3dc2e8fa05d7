package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerProcessFactory launches worker containers against the local Docker
// daemon. Input files are written into the attempt workspace on the host and
// reach the container through the workspace mount.
type DockerProcessFactory struct {
	client        *client.Client
	workspaceRoot string

	// host-side paths for the mounts, which differ from workspaceRoot and
	// localRoot when the scheduler itself runs inside a container
	workspaceMount string
	localMount     string
	network        string
}

// NewDockerProcessFactory creates a Docker-based process factory
func NewDockerProcessFactory(workspaceRoot, workspaceMount, localMount, network string) (*DockerProcessFactory, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if workspaceMount == "" {
		workspaceMount = workspaceRoot
	}

	return &DockerProcessFactory{
		client:         cli,
		workspaceRoot:  workspaceRoot,
		workspaceMount: workspaceMount,
		localMount:     localMount,
		network:        network,
	}, nil
}

// NewDockerProcessFactoryWithClient creates a factory with a custom Docker
// client, useful for tests
func NewDockerProcessFactoryWithClient(cli *client.Client, workspaceRoot string) *DockerProcessFactory {
	return &DockerProcessFactory{
		client:         cli,
		workspaceRoot:  workspaceRoot,
		workspaceMount: workspaceRoot,
		network:        "host",
	}
}

// Create launches a worker container for the attempt. The entrypoint
// override replaces the image's own entrypoint; args are passed through.
func (f *DockerProcessFactory) Create(ctx context.Context, spec CreateSpec) (Process, error) {
	logger := logging.Log.WithField("job_id", spec.JobID).WithField("attempt", spec.AttemptNumber)

	jobDir := filepath.Join(f.workspaceRoot, spec.JobID, fmt.Sprint(spec.AttemptNumber))
	if err := writeFiles(jobDir, spec.Files); err != nil {
		return nil, fmt.Errorf("failed to stage input files: %w", err)
	}

	if err := f.ensureImage(ctx, spec.ImageName); err != nil {
		return nil, fmt.Errorf("failed to ensure image: %w", err)
	}

	containerConfig := &container.Config{
		Image:        spec.ImageName,
		Entrypoint:   []string{spec.Entrypoint},
		Cmd:          spec.Args,
		WorkingDir:   "/data/job",
		AttachStdin:  spec.UsesStdin,
		OpenStdin:    spec.UsesStdin,
		StdinOnce:    spec.UsesStdin,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		Labels: map[string]string{
			"driftsync.job_id":    spec.JobID,
			"driftsync.attempt":   fmt.Sprint(spec.AttemptNumber),
			"driftsync.component": "worker",
		},
	}

	binds := []string{
		fmt.Sprintf("%s:/data/job", filepath.Join(f.workspaceMount, spec.JobID, fmt.Sprint(spec.AttemptNumber))),
	}
	if f.localMount != "" {
		binds = append(binds, fmt.Sprintf("%s:/local", f.localMount))
	}

	hostConfig := &container.HostConfig{
		Binds:       binds,
		NetworkMode: container.NetworkMode(f.network),
		AutoRemove:  false, // removed explicitly in Destroy so the exit code survives
	}

	name := workerName(spec.JobID, spec.AttemptNumber)
	logger.WithField("image", spec.ImageName).WithField("container_name", name).Info("Creating worker container")

	resp, err := f.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	proc := &dockerProcess{
		client:      f.client,
		containerID: resp.ID,
	}

	attachOpts := container.AttachOptions{
		Stream: true,
		Stdin:  spec.UsesStdin,
		Stdout: true,
		Stderr: true,
	}
	hijacked, err := f.client.ContainerAttach(ctx, resp.ID, attachOpts)
	if err != nil {
		f.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to attach to container: %w", err)
	}
	proc.wireStreams(hijacked, spec.UsesStdin)

	if err := f.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		hijacked.Close()
		f.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	logger.WithField("container_id", resp.ID).Info("Worker container started")
	return proc, nil
}

// Close releases the Docker client
func (f *DockerProcessFactory) Close() error {
	return f.client.Close()
}

func (f *DockerProcessFactory) ensureImage(ctx context.Context, imageName string) error {
	_, _, err := f.client.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}

	logging.Log.WithField("image", imageName).Info("Pulling worker image")
	pullResp, err := f.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer pullResp.Close()

	// the pull response must be drained for the pull to complete
	if _, err := io.Copy(io.Discard, pullResp); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// writeFiles materializes the spec files in the attempt workspace
func writeFiles(dir string, files map[string]string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
			return err
		}
	}
	return nil
}

// dockerProcess adapts a Docker container to the Process contract
type dockerProcess struct {
	client      *client.Client
	containerID string

	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	mu       sync.Mutex
	exited   bool
	exitCode int
}

func (p *dockerProcess) wireStreams(hijacked types.HijackedResponse, usesStdin bool) {
	if usesStdin {
		p.stdin = hijacked.Conn
	}

	// Docker multiplexes stdout and stderr into one stream; demultiplex
	// with stdcopy into two pipes.
	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	p.stdout = stdoutReader
	p.stderr = stderrReader

	go func() {
		defer stdoutWriter.Close()
		defer stderrWriter.Close()
		_, err := stdcopy.StdCopy(stdoutWriter, stderrWriter, hijacked.Reader)
		if err != nil && err != io.EOF {
			logging.Log.WithError(err).Error("Error demultiplexing container output")
		}
	}()
}

func (p *dockerProcess) Stdin() io.WriteCloser {
	return p.stdin
}

func (p *dockerProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *dockerProcess) Stderr() io.Reader {
	return p.stderr
}

func (p *dockerProcess) WaitFor(ctx context.Context) error {
	statusCh, errCh := p.client.ContainerWait(ctx, p.containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error waiting for container: %w", err)
		}
		return fmt.Errorf("container wait ended without status")
	case status := <-statusCh:
		p.mu.Lock()
		p.exited = true
		p.exitCode = int(status.StatusCode)
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *dockerProcess) ExitValue() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		return 0, fmt.Errorf("container %s has not exited", p.containerID)
	}
	return p.exitCode, nil
}

func (p *dockerProcess) Destroy(ctx context.Context) error {
	err := p.client.ContainerRemove(ctx, p.containerID, container.RemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	})
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (p *dockerProcess) IsAlive(ctx context.Context) bool {
	inspect, err := p.client.ContainerInspect(ctx, p.containerID)
	if err != nil {
		return false
	}
	return inspect.State != nil && inspect.State.Running
}

// Ensure the Docker variant satisfies the factory contract
var (
	_ Factory = (*DockerProcessFactory)(nil)
	_ Process = (*dockerProcess)(nil)
)
