package process

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

func TestBuildWorkerPod(t *testing.T) {
	spec := CreateSpec{
		JobID:         "42",
		AttemptNumber: 1,
		ImageName:     "driftdata/source-postgres:0.3.1",
		UsesStdin:     true,
		Files:         map[string]string{"config.json": "{}"},
		Entrypoint:    "/driftsync/worker.sh",
		Args:          []string{"read", "--config", "config.json"},
	}

	pod := buildWorkerPod("driftsync-worker-42-1", "jobs", "http://scheduler:9000", 9010, spec)

	assert.Equal(t, "driftsync-worker-42-1", pod.Name)
	assert.Equal(t, "jobs", pod.Namespace)
	assert.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)
	require.NotNil(t, pod.Spec.ShareProcessNamespace)
	assert.True(t, *pod.Spec.ShareProcessNamespace)

	assert.Equal(t, "42", pod.Labels["driftsync.io/job-id"])
	assert.Equal(t, "9010", pod.Labels["driftsync.io/worker-port"])

	require.Len(t, pod.Spec.InitContainers, 1)
	init := pod.Spec.InitContainers[0]
	assert.Equal(t, initContainerName, init.Name)
	assert.Contains(t, init.Command[2], uploadedMarkerFile)

	require.Len(t, pod.Spec.Containers, 2)
	main := pod.Spec.Containers[0]
	assert.Equal(t, mainContainerName, main.Name)
	assert.Equal(t, spec.ImageName, main.Image)
	assert.True(t, main.Stdin)
	assert.Contains(t, main.Command[2], "'/driftsync/worker.sh' 'read' '--config' 'config.json'")
	assert.Contains(t, main.Command[2], terminationFile)

	heartbeat := pod.Spec.Containers[1]
	assert.Equal(t, heartbeatContainerName, heartbeat.Name)
	assert.Contains(t, heartbeat.Command[2], "http://scheduler:9000")
	assert.Contains(t, heartbeat.Command[2], fmt.Sprintf("$FAILS -lt %d", heartbeatFailureThreshold))
}

func TestPodExitValue(t *testing.T) {
	tests := []struct {
		name         string
		pod          *corev1.Pod
		expectedCode int
		expectError  bool
	}{
		{
			name: "main container terminated with code",
			pod: podWithMainStatus(corev1.ContainerState{
				Terminated: &corev1.ContainerStateTerminated{ExitCode: 2},
			}, corev1.PodFailed),
			expectedCode: 2,
		},
		{
			name: "main container terminated zero",
			pod: podWithMainStatus(corev1.ContainerState{
				Terminated: &corev1.ContainerStateTerminated{ExitCode: 0},
			}, corev1.PodSucceeded),
			expectedCode: 0,
		},
		{
			name: "image never pulled infers command not found",
			pod: podWithMainStatus(corev1.ContainerState{
				Waiting: &corev1.ContainerStateWaiting{Reason: "ImagePullBackOff", Message: "back-off"},
			}, corev1.PodPending),
			expectedCode: 127,
		},
		{
			name: "invalid image name infers command not found",
			pod: podWithMainStatus(corev1.ContainerState{
				Waiting: &corev1.ContainerStateWaiting{Reason: "InvalidImageName"},
			}, corev1.PodPending),
			expectedCode: 127,
		},
		{
			name:        "no status available",
			pod:         &corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodFailed}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := podExitValue(tt.pod)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, code)
		})
	}
}

func TestCheckPodStartupFailure(t *testing.T) {
	tests := []struct {
		name           string
		pod            *corev1.Pod
		expectedReason string
	}{
		{
			name: "image pull backoff on main container",
			pod: podWithMainStatus(corev1.ContainerState{
				Waiting: &corev1.ContainerStateWaiting{Reason: "ImagePullBackOff", Message: "back-off pulling"},
			}, corev1.PodPending),
			expectedReason: "ImagePullBackOff",
		},
		{
			name: "waiting on normal startup is not a failure",
			pod: podWithMainStatus(corev1.ContainerState{
				Waiting: &corev1.ContainerStateWaiting{Reason: "ContainerCreating"},
			}, corev1.PodPending),
			expectedReason: "",
		},
		{
			name: "init container failure detected",
			pod: &corev1.Pod{
				Status: corev1.PodStatus{
					InitContainerStatuses: []corev1.ContainerStatus{
						{
							Name: initContainerName,
							State: corev1.ContainerState{
								Waiting: &corev1.ContainerStateWaiting{Reason: "ErrImagePull"},
							},
						},
					},
				},
			},
			expectedReason: "ErrImagePull",
		},
		{
			name: "unschedulable pod detected",
			pod: &corev1.Pod{
				Status: corev1.PodStatus{
					Conditions: []corev1.PodCondition{
						{
							Type:    corev1.PodScheduled,
							Status:  corev1.ConditionFalse,
							Reason:  "Unschedulable",
							Message: "0/3 nodes available",
						},
					},
				},
			},
			expectedReason: "Unschedulable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, _ := checkPodStartupFailure(tt.pod)
			assert.Equal(t, tt.expectedReason, reason)
		})
	}
}

func TestPodStartupErrorString(t *testing.T) {
	err := &PodStartupError{Reason: "ImagePullBackOff", Message: `Back-off pulling image "invalid:image"`}
	assert.Equal(t, `pod failed to start: ImagePullBackOff - Back-off pulling image "invalid:image"`, err.Error())

	err = &PodStartupError{Reason: "ErrImagePull"}
	assert.Equal(t, "pod failed to start: ErrImagePull", err.Error())
}

func TestShellJoinQuotesArguments(t *testing.T) {
	joined := shellJoin([]string{"/bin/run", "--name", "it's here"})
	assert.Equal(t, `'/bin/run' '--name' 'it'\''s here'`, joined)
	assert.False(t, strings.Contains(joined, `"`))
}

func podWithMainStatus(state corev1.ContainerState, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		Status: corev1.PodStatus{
			Phase: phase,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: mainContainerName, State: state},
			},
		},
	}
}
