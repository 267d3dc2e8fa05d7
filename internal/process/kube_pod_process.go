package process

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
)

const (
	mainContainerName      = "main"
	initContainerName      = "init"
	heartbeatContainerName = "heartbeat"

	configMountPath      = "/config"
	terminationMountPath = "/termination"
	terminationFile      = "TERMINATION"
	uploadedMarkerFile   = "FINISHED_UPLOADING"

	podPollInterval = time.Second

	// the sidecar probes every heartbeatProbeInterval seconds and
	// self-terminates after heartbeatFailureThreshold consecutive failures
	heartbeatProbeInterval    = 30
	heartbeatFailureThreshold = 3
)

// PodStartupError is returned when a pod never manages to start its
// containers, e.g. the image cannot be pulled.
type PodStartupError struct {
	Reason  string
	Message string
}

func (e *PodStartupError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pod failed to start: %s - %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("pod failed to start: %s", e.Reason)
}

// kubePodProcess is a worker pod behaving like a local process. Stdin,
// stdout and stderr are carried over a pod attach stream; the real exit
// code is written by the entrypoint wrapper and surfaced through the main
// container's terminated status.
type kubePodProcess struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config
	namespace  string
	podName    string

	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	releasePort func()
	releaseOnce sync.Once

	mu       sync.Mutex
	finalPod *corev1.Pod
}

// launchKubePod creates the worker pod, stages the input files into it and
// attaches to the main container's streams.
func launchKubePod(ctx context.Context, clientset kubernetes.Interface, restConfig *rest.Config, namespace, heartbeatURL string, workerPort int, spec CreateSpec) (*kubePodProcess, error) {
	logger := logging.Log.WithField("job_id", spec.JobID).WithField("attempt", spec.AttemptNumber)
	podName := "driftsync-worker-" + workerName(spec.JobID, spec.AttemptNumber)

	pod := buildWorkerPod(podName, namespace, heartbeatURL, workerPort, spec)

	logger.WithField("pod_name", podName).WithField("image", spec.ImageName).Info("Creating worker pod")
	created, err := clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pod: %w", err)
	}

	proc := &kubePodProcess{
		clientset:  clientset,
		restConfig: restConfig,
		namespace:  namespace,
		podName:    created.Name,
	}

	// The init container blocks until the upload marker appears, so the pod
	// sits waiting while files are copied in.
	if err := proc.waitForInitContainer(ctx); err != nil {
		proc.deletePod(context.Background())
		return nil, err
	}
	if err := proc.copyFilesToPod(spec.Files); err != nil {
		proc.deletePod(context.Background())
		return nil, fmt.Errorf("failed to stage input files: %w", err)
	}
	if err := proc.attachStreams(ctx, spec.UsesStdin); err != nil {
		proc.deletePod(context.Background())
		return nil, fmt.Errorf("failed to attach to worker pod: %w", err)
	}

	logger.WithField("pod_name", podName).Info("Worker pod started")
	return proc, nil
}

// buildWorkerPod assembles the three-container pod: an init container gating
// on file upload, the user image with a wrapped entrypoint, and a heartbeat
// sidecar that kills the pod when the scheduler stops answering.
func buildWorkerPod(podName, namespace, heartbeatURL string, workerPort int, spec CreateSpec) *corev1.Pod {
	shareProcessNamespace := true

	// The wrapper records the real exit code in the shared termination file
	// and then exits with it, so the code survives in the container status.
	mainCommand := fmt.Sprintf(
		`cd %s
%s
CODE=$?
echo $CODE > %s/%s
exit $CODE`,
		configMountPath,
		shellJoin(append([]string{spec.Entrypoint}, spec.Args...)),
		terminationMountPath, terminationFile,
	)

	initCommand := fmt.Sprintf(
		`until [ -f %s/%s ]; do sleep 0.1; done`,
		configMountPath, uploadedMarkerFile,
	)

	// Any 2xx resets the failure counter. After three consecutive failures
	// the sidecar kills every process in the shared namespace, taking the
	// main container down with a non-zero exit.
	heartbeatCommand := fmt.Sprintf(
		`FAILS=0
while [ $FAILS -lt %d ]; do
  if wget -q -O /dev/null %s; then FAILS=0; else FAILS=$((FAILS+1)); fi
  if [ -f %s/%s ]; then exit 0; fi
  sleep %d
done
echo "heartbeat to %s failed, killing pod" >&2
kill -TERM -1`,
		heartbeatFailureThreshold, heartbeatURL,
		terminationMountPath, terminationFile,
		heartbeatProbeInterval, heartbeatURL,
	)

	volumeMounts := []corev1.VolumeMount{
		{Name: "worker-config", MountPath: configMountPath},
		{Name: "worker-termination", MountPath: terminationMountPath},
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: namespace,
			Labels: map[string]string{
				"driftsync.io/job-id":    spec.JobID,
				"driftsync.io/attempt":   fmt.Sprint(spec.AttemptNumber),
				"driftsync.io/component": "worker",
				// the pool port this pod leases
				"driftsync.io/worker-port": fmt.Sprint(workerPort),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:         corev1.RestartPolicyNever,
			ShareProcessNamespace: &shareProcessNamespace,
			InitContainers: []corev1.Container{
				{
					Name:         initContainerName,
					Image:        "busybox:1.36",
					Command:      []string{"sh", "-c", initCommand},
					VolumeMounts: volumeMounts,
				},
			},
			Containers: []corev1.Container{
				{
					Name:         mainContainerName,
					Image:        spec.ImageName,
					Command:      []string{"sh", "-c", mainCommand},
					Stdin:        spec.UsesStdin,
					StdinOnce:    spec.UsesStdin,
					VolumeMounts: volumeMounts,
				},
				{
					Name:         heartbeatContainerName,
					Image:        "busybox:1.36",
					Command:      []string{"sh", "-c", heartbeatCommand},
					VolumeMounts: volumeMounts,
				},
			},
			Volumes: []corev1.Volume{
				{
					Name:         "worker-config",
					VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
				},
				{
					Name:         "worker-termination",
					VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
				},
			},
		},
	}
}

// waitForInitContainer polls until the init container is running (ready to
// receive files) or a startup failure surfaces.
func (p *kubePodProcess) waitForInitContainer(ctx context.Context) error {
	ticker := time.NewTicker(podPollInterval)
	defer ticker.Stop()
	timeout := time.After(5 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for worker pod init container")
		case <-ticker.C:
			pod, err := p.clientset.CoreV1().Pods(p.namespace).Get(ctx, p.podName, metav1.GetOptions{})
			if err != nil {
				continue
			}
			if reason, message := checkPodStartupFailure(pod); reason != "" {
				return &PodStartupError{Reason: reason, Message: message}
			}
			for _, status := range pod.Status.InitContainerStatuses {
				if status.Name == initContainerName && status.State.Running != nil {
					return nil
				}
			}
		}
	}
}

// copyFilesToPod streams a tar archive into the waiting init container and
// then drops the upload marker, releasing the init gate.
func (p *kubePodProcess) copyFilesToPod(files map[string]string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, contents := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(contents)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write([]byte(contents)); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}

	untar := fmt.Sprintf("tar -xmf - -C %s", configMountPath)
	if err := p.execInContainer(initContainerName, []string{"sh", "-c", untar}, &buf); err != nil {
		return err
	}

	touch := fmt.Sprintf("touch %s/%s", configMountPath, uploadedMarkerFile)
	return p.execInContainer(initContainerName, []string{"sh", "-c", touch}, nil)
}

// execInContainer runs a command in a pod container over SPDY, feeding it
// stdin when provided.
func (p *kubePodProcess) execInContainer(container string, command []string, stdin io.Reader) error {
	req := p.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(p.podName).
		Namespace(p.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdin:     stdin != nil,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(p.restConfig, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("failed to create exec executor: %w", err)
	}

	var stderr bytes.Buffer
	err = executor.StreamWithContext(context.Background(), remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: io.Discard,
		Stderr: &stderr,
	})
	if err != nil {
		return fmt.Errorf("exec in container %s failed: %w (stderr: %s)", container, err, stderr.String())
	}
	return nil
}

// attachStreams connects stdin, stdout and stderr of the main container to
// the caller via a pod attach stream.
func (p *kubePodProcess) attachStreams(ctx context.Context, usesStdin bool) error {
	req := p.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(p.podName).
		Namespace(p.namespace).
		SubResource("attach").
		VersionedParams(&corev1.PodAttachOptions{
			Container: mainContainerName,
			Stdin:     usesStdin,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(p.restConfig, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("failed to create attach executor: %w", err)
	}

	var stdinReader io.Reader
	if usesStdin {
		r, w := io.Pipe()
		stdinReader = r
		p.stdin = w
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	p.stdout = stdoutReader
	p.stderr = stderrReader

	go func() {
		defer stdoutWriter.Close()
		defer stderrWriter.Close()
		err := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdin:  stdinReader,
			Stdout: stdoutWriter,
			Stderr: stderrWriter,
		})
		if err != nil && ctx.Err() == nil {
			logging.Log.WithError(err).WithField("pod_name", p.podName).Debug("Pod attach stream ended")
		}
	}()

	return nil
}

func (p *kubePodProcess) Stdin() io.WriteCloser {
	return p.stdin
}

func (p *kubePodProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *kubePodProcess) Stderr() io.Reader {
	return p.stderr
}

// WaitFor polls the pod phase until it reaches Succeeded or Failed
func (p *kubePodProcess) WaitFor(ctx context.Context) error {
	ticker := time.NewTicker(podPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pod, err := p.clientset.CoreV1().Pods(p.namespace).Get(ctx, p.podName, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("failed to get worker pod: %w", err)
			}
			if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
				p.mu.Lock()
				p.finalPod = pod
				p.mu.Unlock()
				return nil
			}
			// A pod stuck on a startup failure never reaches a terminal
			// phase on its own; treat it as finished so the exit code can
			// be inferred.
			if reason, _ := checkPodStartupFailure(pod); reason != "" {
				p.mu.Lock()
				p.finalPod = pod
				p.mu.Unlock()
				return nil
			}
		}
	}
}

// ExitValue returns the main container's exit code. A pod that never started
// its command is reported as 127, matching the shell convention for a
// missing executable.
func (p *kubePodProcess) ExitValue() (int, error) {
	p.mu.Lock()
	pod := p.finalPod
	p.mu.Unlock()
	if pod == nil {
		return 0, fmt.Errorf("pod %s has not exited", p.podName)
	}
	return podExitValue(pod)
}

func podExitValue(pod *corev1.Pod) (int, error) {
	for _, status := range pod.Status.ContainerStatuses {
		if status.Name == mainContainerName && status.State.Terminated != nil {
			return int(status.State.Terminated.ExitCode), nil
		}
	}
	if reason, _ := checkPodStartupFailure(pod); reason != "" {
		return exitCodeCommandNotFound, nil
	}
	if pod.Status.Phase == corev1.PodSucceeded {
		return exitCodeSuccess, nil
	}
	return 0, fmt.Errorf("exit code not available for pod %s", pod.Name)
}

// Destroy deletes the pod and returns the leased port to the pool
func (p *kubePodProcess) Destroy(ctx context.Context) error {
	err := p.deletePod(ctx)
	p.releaseOnce.Do(func() {
		if p.releasePort != nil {
			p.releasePort()
		}
	})
	return err
}

func (p *kubePodProcess) deletePod(ctx context.Context) error {
	propagation := metav1.DeletePropagationBackground
	err := p.clientset.CoreV1().Pods(p.namespace).Delete(ctx, p.podName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		return fmt.Errorf("failed to delete worker pod: %w", err)
	}
	return nil
}

func (p *kubePodProcess) IsAlive(ctx context.Context) bool {
	pod, err := p.clientset.CoreV1().Pods(p.namespace).Get(ctx, p.podName, metav1.GetOptions{})
	if err != nil {
		return false
	}
	return pod.Status.Phase == corev1.PodPending || pod.Status.Phase == corev1.PodRunning
}

// checkPodStartupFailure reports waiting reasons that never self-recover
func checkPodStartupFailure(pod *corev1.Pod) (reason, message string) {
	statuses := append(append([]corev1.ContainerStatus{}, pod.Status.InitContainerStatuses...), pod.Status.ContainerStatuses...)
	for _, status := range statuses {
		if status.State.Waiting == nil {
			continue
		}
		waiting := status.State.Waiting
		switch waiting.Reason {
		case "ImagePullBackOff", "ErrImagePull", "ImageInspectError", "ErrImageNeverPull",
			"InvalidImageName", "CreateContainerConfigError", "CreateContainerError",
			"RunContainerError", "CrashLoopBackOff":
			return waiting.Reason, waiting.Message
		}
	}
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodScheduled && condition.Status == corev1.ConditionFalse && condition.Reason == "Unschedulable" {
			return condition.Reason, condition.Message
		}
	}
	return "", ""
}

// shellJoin quotes each argument for safe interpolation into an sh -c script
func shellJoin(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, "'"+strings.ReplaceAll(a, "'", `'\''`)+"'")
	}
	return strings.Join(quoted, " ")
}

var _ Process = (*kubePodProcess)(nil)
