package runtimestate

import (
	"context"
	"testing"
	"time"

	"github.com/open-runtimes/executor/kube"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newAccessor(objs ...interface{}) (*Accessor, *fake.Clientset) {
	runtimeObjs := make([]interface{}, 0, len(objs))
	runtimeObjs = append(runtimeObjs, objs...)
	clientset := fake.NewSimpleClientset()
	for _, o := range runtimeObjs {
		dep := o.(*appsv1.Deployment)
		_, _ = clientset.AppsV1().Deployments(dep.Namespace).Create(context.Background(), dep, metav1.CreateOptions{})
	}
	k := kube.New(clientset, nil, "default")
	return New(k), clientset
}

func deployment(id, namespace string, annotations map[string]string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        DeploymentName(id),
			Namespace:   namespace,
			Annotations: annotations,
		},
	}
}

func TestExists(t *testing.T) {
	a, _ := newAccessor(deployment("r1", "default", nil))

	ok, err := a.Exists(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Exists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusReturnsNilWhenAbsent(t *testing.T) {
	a, _ := newAccessor()

	st, err := a.Status(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestStatusParsesAnnotations(t *testing.T) {
	ann := map[string]string{
		Annotation(FieldStatus):      "ready",
		Annotation(FieldInitialised): "1",
		Annotation(FieldListening):   "0",
		Annotation(FieldCreated):     "1000",
		Annotation(FieldUpdated):     "2000",
	}
	a, _ := newAccessor(deployment("r1", "default", ann))

	st, err := a.Status(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "ready", st.Status)
	assert.True(t, st.Initialised)
	assert.False(t, st.Listening)
	assert.EqualValues(t, 1000, st.Created)
	assert.EqualValues(t, 2000, st.Updated)
}

func TestUpdatePatchesAnnotations(t *testing.T) {
	a, clientset := newAccessor(deployment("r1", "default", map[string]string{}))

	err := a.Update(context.Background(), "r1", map[string]string{
		FieldStatus:      "ready",
		FieldInitialised: "1",
	})
	require.NoError(t, err)

	dep, err := clientset.AppsV1().Deployments("default").Get(context.Background(), DeploymentName("r1"), metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ready", dep.Annotations[Annotation(FieldStatus)])
	assert.Equal(t, "1", dep.Annotations[Annotation(FieldInitialised)])
}

func TestUpdateNoOpOnEmptyPatch(t *testing.T) {
	a, _ := newAccessor(deployment("r1", "default", nil))
	err := a.Update(context.Background(), "r1", nil)
	assert.NoError(t, err)
}

func TestWaitReadySucceedsOnceStatusLeavesPending(t *testing.T) {
	a, clientset := newAccessor(deployment("r1", "default", map[string]string{
		Annotation(FieldStatus): "pending",
	}))

	go func() {
		time.Sleep(600 * time.Millisecond)
		dep, _ := clientset.AppsV1().Deployments("default").Get(context.Background(), DeploymentName("r1"), metav1.GetOptions{})
		dep.Annotations[Annotation(FieldStatus)] = "ready"
		_, _ = clientset.AppsV1().Deployments("default").Update(context.Background(), dep, metav1.UpdateOptions{})
	}()

	err := a.WaitReady(context.Background(), "r1", 5*time.Second)
	assert.NoError(t, err)
}

func TestWaitReadyTimesOut(t *testing.T) {
	a, _ := newAccessor(deployment("r1", "default", map[string]string{
		Annotation(FieldStatus): "pending",
	}))

	err := a.WaitReady(context.Background(), "r1", 200*time.Millisecond)
	require.Error(t, err)
}
