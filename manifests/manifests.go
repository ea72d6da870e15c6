// Package manifests builds the Job, Deployment, Service, and Lease objects
// the orchestrator treats as opaque resource definitions parameterized by
// the call site.
package manifests

import (
	"fmt"

	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/runtimestate"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// BuildJobParams parameterizes the ephemeral build Job.
type BuildJobParams struct {
	RuntimeID    string
	JobName      string
	Namespace    string
	Image        string
	Command      string
	Version      string
	SourceBase64 string
	Variables    map[string]string
	TTLSeconds   int32
}

// BuildJob constructs the single-pod, no-retry Job that runs the in-pod
// builder.
func BuildJob(p BuildJobParams) *batchv1.Job {
	backoffLimit := int32(0)
	script := buildScript(p.Version, p.Command)

	env := make([]corev1.EnvVar, 0, len(p.Variables)+1)
	for k, v := range p.Variables {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	if p.SourceBase64 != "" {
		env = append(env, corev1.EnvVar{Name: "OPR_SOURCE_BASE64", Value: p.SourceBase64})
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      p.JobName,
			Namespace: p.Namespace,
			Labels: map[string]string{
				constants.LabelRole:      constants.RoleBuild,
				constants.LabelRuntimeID: p.RuntimeID,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &p.TTLSeconds,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						constants.LabelRole:      constants.RoleBuild,
						constants.LabelRuntimeID: p.RuntimeID,
						"job-name":               p.JobName,
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    constants.BuildContainerName,
							Image:   p.Image,
							Command: []string{"sh", "-c", script},
							Env:     env,
						},
					},
				},
			},
		},
	}
}

// buildScript wraps the caller's build command with script(1) for v4/v5 (to
// capture a timing side-channel) or a plain tee for v2, then archives and
// uploads the result.
func buildScript(version, command string) string {
	switch version {
	case constants.VersionV2:
		return fmt.Sprintf(
			"set -e; echo \"$OPR_SOURCE_BASE64\" | base64 -d | tar -xz -C /usr/code; cd /usr/code; (%s) 2>&1 | tee %s; tar -czf /tmp/artifact.tar.gz -C /usr/code .",
			command, constants.V2BuildLogPath)
	default:
		return fmt.Sprintf(
			"set -e; echo \"$OPR_SOURCE_BASE64\" | base64 -d | tar -xz -C /usr/code; cd /usr/code; mkdir -p %s; script --log-out %s --log-timing %s -c %q; tar -czf /tmp/artifact.tar.gz -C /usr/code .",
			constants.V4V5BuildLogDir, constants.V4V5BuildLogPath, constants.V4V5BuildTimingPath, command)
	}
}

// DeploymentParams parameterizes the long-lived runtime Deployment.
type DeploymentParams struct {
	RuntimeID string
	Namespace string
	Image     string
	Variables map[string]string
	CPUs      string
	Memory    string
	Secret    string
	Hostname  string
	Version   string
	Now       int64
}

// RuntimeDeployment constructs dep-{id} with replicas=0 and the lifecycle
// annotations set.
func RuntimeDeployment(p DeploymentParams) *appsv1.Deployment {
	replicas := int32(0)
	env := make([]corev1.EnvVar, 0, len(p.Variables))
	for k, v := range p.Variables {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	resources := corev1.ResourceRequirements{Requests: corev1.ResourceList{}}
	if p.CPUs != "" {
		if q, err := resource.ParseQuantity(p.CPUs); err == nil {
			resources.Requests[corev1.ResourceCPU] = q
		}
	}
	if p.Memory != "" {
		if q, err := resource.ParseQuantity(p.Memory); err == nil {
			resources.Requests[corev1.ResourceMemory] = q
		}
	}

	labels := map[string]string{
		constants.LabelRole:      constants.RoleRuntime,
		constants.LabelRuntimeID: p.RuntimeID,
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      runtimestate.DeploymentName(p.RuntimeID),
			Namespace: p.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				runtimestate.Annotation(runtimestate.FieldVersion):     p.Version,
				runtimestate.Annotation(runtimestate.FieldSecret):      p.Secret,
				runtimestate.Annotation(runtimestate.FieldHostname):    p.Hostname,
				runtimestate.Annotation(runtimestate.FieldCreated):     fmt.Sprintf("%d", p.Now),
				runtimestate.Annotation(runtimestate.FieldUpdated):     fmt.Sprintf("%d", p.Now),
				runtimestate.Annotation(runtimestate.FieldStatus):      "pending",
				runtimestate.Annotation(runtimestate.FieldInitialised): "0",
				runtimestate.Annotation(runtimestate.FieldListening):   "0",
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:      constants.RuntimeContainerName,
							Image:     p.Image,
							Env:       env,
							Resources: resources,
							Ports: []corev1.ContainerPort{
								{ContainerPort: constants.RuntimePort},
							},
						},
					},
				},
			},
		},
	}
}

// RuntimeService constructs svc-{id}, routing port 80 to the runtime
// container's port 3000.
func RuntimeService(runtimeID, namespace string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      runtimestate.ServiceName(runtimeID),
			Namespace: namespace,
			Labels: map[string]string{
				constants.LabelRole:      constants.RoleRuntime,
				constants.LabelRuntimeID: runtimeID,
			},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{
				constants.LabelRole:      constants.RoleRuntime,
				constants.LabelRuntimeID: runtimeID,
			},
			Ports: []corev1.ServicePort{
				{
					Port:       80,
					TargetPort: intstr.FromInt(constants.RuntimePort),
				},
			},
		},
	}
}

// CleanupJob constructs the best-effort delete-{runtimeId}-{suffix} Job that
// bulk-deletes the object store prefix for a removed runtime.
func CleanupJob(runtimeID, jobName, namespace, bucket, prefix string, ttlSeconds int32) *batchv1.Job {
	backoffLimit := int32(0)
	script := fmt.Sprintf("aws s3 rm s3://%s/%s --recursive || true", bucket, prefix)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: namespace,
			Labels: map[string]string{
				constants.LabelRole:      "cleanup",
				constants.LabelRuntimeID: runtimeID,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttlSeconds,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "cleanup",
							Image:   "amazon/aws-cli:latest",
							Command: []string{"sh", "-c", script},
						},
					},
				},
			},
		},
	}
}
