package manifests

import (
	"testing"

	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

func TestBuildJobLabelsAndCommand(t *testing.T) {
	job := BuildJob(BuildJobParams{
		RuntimeID:  "r1",
		JobName:    "build-r1-abc",
		Namespace:  "default",
		Image:      "img",
		Command:    "npm run build",
		Version:    constants.VersionV5,
		Variables:  map[string]string{"FOO": "bar"},
		TTLSeconds: 3600,
	})

	assert.Equal(t, constants.RoleBuild, job.Labels[constants.LabelRole])
	assert.Equal(t, "r1", job.Labels[constants.LabelRuntimeID])
	assert.EqualValues(t, 0, *job.Spec.BackoffLimit)
	assert.Equal(t, corev1.RestartPolicyNever, job.Spec.Template.Spec.RestartPolicy)

	require.Len(t, job.Spec.Template.Spec.Containers, 1)
	container := job.Spec.Template.Spec.Containers[0]
	require.Len(t, container.Command, 3)
	assert.Contains(t, container.Command[2], "script --log-out")
	assert.Contains(t, container.Command[2], "npm run build")
}

func TestBuildJobV2UsesTeeInsteadOfScript(t *testing.T) {
	job := BuildJob(BuildJobParams{
		RuntimeID: "r1",
		JobName:   "build-r1-abc",
		Namespace: "default",
		Image:     "img",
		Command:   "make",
		Version:   constants.VersionV2,
	})

	script := job.Spec.Template.Spec.Containers[0].Command[2]
	assert.Contains(t, script, "tee")
	assert.NotContains(t, script, "script --log-out")
}

func TestRuntimeDeploymentStartsAtZeroReplicasPending(t *testing.T) {
	dep := RuntimeDeployment(DeploymentParams{
		RuntimeID: "r1",
		Namespace: "default",
		Image:     "img",
		Secret:    "s3cr3t",
		Hostname:  "host1",
		Version:   constants.VersionV5,
		CPUs:      "0.5",
		Memory:    "256Mi",
		Now:       1000,
	})

	require.NotNil(t, dep.Spec.Replicas)
	assert.EqualValues(t, 0, *dep.Spec.Replicas)
	assert.Equal(t, "pending", dep.Annotations[runtimestate.Annotation(runtimestate.FieldStatus)])
	assert.Equal(t, "0", dep.Annotations[runtimestate.Annotation(runtimestate.FieldInitialised)])
	assert.Equal(t, "s3cr3t", dep.Annotations[runtimestate.Annotation(runtimestate.FieldSecret)])

	container := dep.Spec.Template.Spec.Containers[0]
	_, hasCPU := container.Resources.Requests[corev1.ResourceCPU]
	_, hasMem := container.Resources.Requests[corev1.ResourceMemory]
	assert.True(t, hasCPU)
	assert.True(t, hasMem)
	require.Len(t, container.Ports, 1)
	assert.EqualValues(t, constants.RuntimePort, container.Ports[0].ContainerPort)
}

func TestRuntimeServiceRoutesToRuntimePort(t *testing.T) {
	svc := RuntimeService("r1", "default")

	assert.Equal(t, runtimestate.ServiceName("r1"), svc.Name)
	require.Len(t, svc.Spec.Ports, 1)
	assert.EqualValues(t, 80, svc.Spec.Ports[0].Port)
	assert.Equal(t, constants.RoleRuntime, svc.Spec.Selector[constants.LabelRole])
	assert.Equal(t, "r1", svc.Spec.Selector[constants.LabelRuntimeID])
}

func TestCleanupJobBuildsRecursiveRemoveScript(t *testing.T) {
	job := CleanupJob("r1", "delete-r1-abcd", "default", "my-bucket", "r1/", 3600)

	script := job.Spec.Template.Spec.Containers[0].Command[2]
	assert.Contains(t, script, "s3://my-bucket/r1/")
	assert.Contains(t, script, "--recursive")
}
