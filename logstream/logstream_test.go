package logstream

import (
	"context"
	"testing"
	"time"

	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/kube"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newStreamer(objs ...interface{}) (*Streamer, *fake.Clientset) {
	clientset := fake.NewSimpleClientset()
	for _, o := range objs {
		switch v := o.(type) {
		case *appsv1.Deployment:
			_, _ = clientset.AppsV1().Deployments(v.Namespace).Create(context.Background(), v, metav1.CreateOptions{})
		case *batchv1.Job:
			_, _ = clientset.BatchV1().Jobs(v.Namespace).Create(context.Background(), v, metav1.CreateOptions{})
		case *corev1.Pod:
			_, _ = clientset.CoreV1().Pods(v.Namespace).Create(context.Background(), v, metav1.CreateOptions{})
		}
	}
	k := kube.New(clientset, nil, "default")
	return New(k), clientset
}

func TestStreamReturnsRuntimeNotFoundForMissingDeployment(t *testing.T) {
	s, _ := newStreamer()

	var emitted []string
	apiErr := s.Stream(context.Background(), "ghost", time.Second, func(chunk string) {
		emitted = append(emitted, chunk)
	})

	require.NotNil(t, apiErr)
	assert.Equal(t, apierrors.KindRuntimeNotFound, apiErr.Type)
	assert.Empty(t, emitted)
}

func TestStreamSkipsV2Runtimes(t *testing.T) {
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      runtimestate.DeploymentName("r1"),
			Namespace: "default",
			Annotations: map[string]string{
				runtimestate.Annotation(runtimestate.FieldVersion): constants.VersionV2,
			},
		},
	}
	s, _ := newStreamer(dep)

	apiErr := s.Stream(context.Background(), "r1", time.Second, func(string) {})
	assert.Nil(t, apiErr)
}

func TestLocateSourcePodPrefersLatestBuildJobPod(t *testing.T) {
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "build-r1-abc",
			Namespace: "default",
			Labels: map[string]string{
				constants.LabelRole:      constants.RoleBuild,
				constants.LabelRuntimeID: "r1",
			},
		},
	}
	buildPod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "build-r1-abc-xyz",
			Namespace: "default",
			Labels:    map[string]string{"job-name": "build-r1-abc"},
		},
	}
	s, _ := newStreamer(job, buildPod)

	pod, container, err := s.locateSourcePod(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "build-r1-abc-xyz", pod)
	assert.Equal(t, constants.BuildContainerName, container)
}

func TestLocateSourcePodFallsBackToRuntimePod(t *testing.T) {
	runtimePod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "dep-r1-xyz",
			Namespace: "default",
			Labels: map[string]string{
				constants.LabelRole:      constants.RoleRuntime,
				constants.LabelRuntimeID: "r1",
			},
		},
	}
	s, _ := newStreamer(runtimePod)

	pod, container, err := s.locateSourcePod(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "dep-r1-xyz", pod)
	assert.Equal(t, constants.RuntimeContainerName, container)
}

func TestLocateSourcePodReturnsEmptyWhenNothingMatches(t *testing.T) {
	s, _ := newStreamer()

	pod, _, err := s.locateSourcePod(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, pod)
}
