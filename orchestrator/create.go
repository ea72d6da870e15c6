package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/manifests"
	"github.com/open-runtimes/executor/metrics"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/open-runtimes/executor/types"
	"github.com/open-runtimes/executor/utils"
	"github.com/open-runtimes/executor/utils/logger"
	"github.com/open-runtimes/executor/utils/notifications"
	"github.com/open-runtimes/executor/utils/telemetry"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Create provisions a runtime: an optional build, a Service, and a
// Deployment starting at zero replicas.
func (o *Orchestrator) Create(ctx context.Context, req types.CreateRuntimeRequest) (*types.CreateRuntimeResponse, *apierrors.Error) {
	startTime := time.Now()

	if req.RuntimeID == "" || req.Image == "" {
		return nil, apierrors.ExecutionBadRequest("runtimeId and image are required")
	}
	if req.Timeout <= 0 {
		req.Timeout = constants.DefaultBuildTimeout
	}
	if req.Version == "" {
		req.Version = constants.VersionV5
	}

	exists, err := o.state.Exists(ctx, req.RuntimeID)
	if err != nil {
		return nil, apierrors.RuntimeFailed(err.Error())
	}
	if exists {
		st, err := o.state.Status(ctx, req.RuntimeID)
		if err != nil {
			return nil, apierrors.RuntimeFailed(err.Error())
		}
		if st != nil && st.Status == "pending" {
			return nil, apierrors.RuntimeConflict(fmt.Sprintf("Runtime %q is already being created", req.RuntimeID))
		}
		return nil, apierrors.RuntimeConflict(fmt.Sprintf("Runtime %q already exists", req.RuntimeID))
	}

	secret, err := utils.RandomHex(16)
	if err != nil {
		return nil, apierrors.RuntimeFailed(err.Error())
	}
	hostname, err := utils.RandomHex(16)
	if err != nil {
		return nil, apierrors.RuntimeFailed(err.Error())
	}

	variables := injectVariables(req.Version, req.Variables, req.Entrypoint, secret, hostname, req.CPUs, req.Memory, req.OutputDirectory)

	var output []types.LogLine
	var artifactPath string

	if req.Command != "" {
		path, lines, apiErr := o.runBuild(ctx, req, variables)
		if apiErr != nil {
			return nil, apiErr
		}
		artifactPath = path
		output = lines
	} else if req.Source != "" {
		artifactPath = req.Source
	}

	if err := o.ensureService(ctx, req.RuntimeID); err != nil {
		return nil, apierrors.RuntimeFailed(fmt.Sprintf("failed to create service: %s", err))
	}

	now := utils.NowMillis()
	dep := manifests.RuntimeDeployment(manifests.DeploymentParams{
		RuntimeID: req.RuntimeID,
		Namespace: o.kube.Namespace,
		Image:     req.Image,
		Variables: variables,
		CPUs:      req.CPUs,
		Memory:    req.Memory,
		Secret:    secret,
		Hostname:  hostname,
		Version:   req.Version,
		Now:       now,
	})
	if err := o.createOrReplaceDeployment(ctx, dep); err != nil {
		return nil, apierrors.RuntimeFailed(fmt.Sprintf("failed to create deployment: %s", err))
	}

	duration := time.Since(startTime).Seconds()
	_ = o.state.Update(ctx, req.RuntimeID, map[string]string{
		runtimestate.FieldStatus:      fmt.Sprintf("Up %.0fs", duration),
		runtimestate.FieldInitialised: "1",
		runtimestate.FieldUpdated:     fmt.Sprintf("%d", utils.NowMillis()),
	})

	resp := &types.CreateRuntimeResponse{
		Output:    output,
		StartTime: float64(startTime.UnixMilli()) / 1000,
		Duration:  duration,
	}

	responsePath := artifactPath
	if req.Destination != "" {
		responsePath = req.Destination
	}

	if req.Destination != "" && artifactPath != "" {
		if size, err := o.store.HeadObject(ctx, artifactPath); err == nil {
			resp.Size = &size
		}
		resp.Path = responsePath
	}

	if req.Remove {
		go o.delayedRemove(req.RuntimeID)
	}

	telemetry.SendEvent(req.RuntimeID, telemetry.EventCreated)

	return resp, nil
}

// delayedRemove waits ~2s (to let log harvesting observe the pod) then
// best-effort deletes the Deployment and Service.
func (o *Orchestrator) delayedRemove(runtimeID string) {
	time.Sleep(2 * time.Second)
	ctx := context.Background()
	_ = o.kube.Clientset.AppsV1().Deployments(o.kube.Namespace).Delete(ctx, runtimestate.DeploymentName(runtimeID), metav1.DeleteOptions{})
	_ = o.kube.Clientset.CoreV1().Services(o.kube.Namespace).Delete(ctx, runtimestate.ServiceName(runtimeID), metav1.DeleteOptions{})
}

func (o *Orchestrator) ensureService(ctx context.Context, runtimeID string) error {
	svc := manifests.RuntimeService(runtimeID, o.kube.Namespace)
	_, err := o.kube.Clientset.CoreV1().Services(o.kube.Namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err != nil && !k8serrors.IsAlreadyExists(err) {
		return err
	}
	return nil
}

// createOrReplaceDeployment creates dep-{id}, replacing it first if a stale
// copy (e.g. from a prior failed create) is somehow already present.
func (o *Orchestrator) createOrReplaceDeployment(ctx context.Context, dep *appsv1.Deployment) error {
	deployments := o.kube.Clientset.AppsV1().Deployments(o.kube.Namespace)
	_, err := deployments.Create(ctx, dep, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !k8serrors.IsAlreadyExists(err) {
		return err
	}

	existing, getErr := deployments.Get(ctx, dep.Name, metav1.GetOptions{})
	if getErr != nil {
		return getErr
	}
	dep.ResourceVersion = existing.ResourceVersion
	_, err = deployments.Update(ctx, dep, metav1.UpdateOptions{})
	return err
}

// runBuild creates the build Job, polls it to completion, and harvests its
// output.
func (o *Orchestrator) runBuild(ctx context.Context, req types.CreateRuntimeRequest, variables map[string]string) (string, []types.LogLine, *apierrors.Error) {
	buildID := uuid.New().String()
	artifactPath := fmt.Sprintf("%s/%s.tar.gz", req.RuntimeID, buildID)
	jobName := fmt.Sprintf("build-%s-%s", req.RuntimeID, buildID[:8])

	var sourceBase64 string
	if req.Source != "" {
		body, err := o.store.GetObject(ctx, req.Source)
		if err != nil {
			return "", nil, apierrors.RuntimeFailed(fmt.Sprintf("failed to download source: %s", err))
		}
		sourceBase64 = base64.StdEncoding.EncodeToString(body)
	}

	job := manifests.BuildJob(manifests.BuildJobParams{
		RuntimeID:    req.RuntimeID,
		JobName:      jobName,
		Namespace:    o.kube.Namespace,
		Image:        req.Image,
		Command:      req.Command,
		Version:      req.Version,
		SourceBase64: sourceBase64,
		Variables:    variables,
		TTLSeconds:   3600,
	})

	if _, err := o.kube.Clientset.BatchV1().Jobs(o.kube.Namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", nil, apierrors.RuntimeFailed(fmt.Sprintf("failed to create build job: %s", err))
	}

	succeeded, apiErr := o.waitForJob(ctx, jobName, time.Duration(req.Timeout)*time.Second)
	output := o.harvestBuildOutput(ctx, jobName, req.Version)
	if apiErr != nil {
		metrics.BuildsTotal.WithLabelValues("error").Inc()
		o.notifyBuildFailure(req.RuntimeID, output)
		return "", output, apiErr
	}
	if !succeeded {
		metrics.BuildsTotal.WithLabelValues("failed").Inc()
		o.notifyBuildFailure(req.RuntimeID, output)
		return "", output, apierrors.RuntimeFailed("Build job failed")
	}

	metrics.BuildsTotal.WithLabelValues("succeeded").Inc()
	return artifactPath, output, nil
}

// notifyBuildFailure posts a best-effort Slack alert; failures (including a
// missing SLACK_WEBHOOK_URL) are swallowed since alerting is optional.
func (o *Orchestrator) notifyBuildFailure(runtimeID string, output []types.LogLine) {
	var combined strings.Builder
	for _, line := range output {
		combined.WriteString(line.Content)
	}
	if err := notifications.SendBuildFailureNotification(runtimeID, time.Now(), combined.String()); err != nil {
		logger.Debugf("build failure notification not sent for runtime %s: %s", runtimeID, err)
	}
}

// waitForJob polls the build Job every 1s. A 404 read is tolerated (the Job
// may not yet be visible). Non-404 read errors are treated as fatal rather
// than retried indefinitely.
func (o *Orchestrator) waitForJob(ctx context.Context, jobName string, timeout time.Duration) (bool, *apierrors.Error) {
	deadline := time.Now().Add(timeout)
	jobs := o.kube.Clientset.BatchV1().Jobs(o.kube.Namespace)

	for {
		job, err := jobs.Get(ctx, jobName, metav1.GetOptions{})
		if err != nil {
			if !k8serrors.IsNotFound(err) {
				return false, apierrors.RuntimeFailed(fmt.Sprintf("failed to read build job: %s", err))
			}
		} else {
			if job.Status.Succeeded >= 1 {
				return true, nil
			}
			if job.Status.Failed >= 1 {
				return false, nil
			}
		}

		if time.Now().After(deadline) {
			return false, apierrors.RuntimeTimeout("Build job timed out")
		}

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return false, apierrors.RuntimeTimeout("Build job timed out")
		}
	}
}

// harvestBuildOutput reads the build pod's log files and decodes them. On
// pod-read failure it falls back to the cluster's native pod log API;
// otherwise it returns empty output.
func (o *Orchestrator) harvestBuildOutput(ctx context.Context, jobName, version string) []types.LogLine {
	pod, err := o.firstPodForJob(ctx, jobName)
	if err != nil || pod == "" {
		return nil
	}

	if version == constants.VersionV2 {
		content, err := o.pods.ReadFile(ctx, pod, constants.BuildContainerName, constants.V2BuildLogPath)
		if err != nil {
			return o.fallbackPodLogs(ctx, pod)
		}
		return []types.LogLine{{Timestamp: "", Content: content}}
	}

	logs, err := o.pods.ReadFile(ctx, pod, constants.BuildContainerName, constants.V4V5BuildLogPath)
	if err != nil {
		return o.fallbackPodLogs(ctx, pod)
	}
	timings, err := o.pods.ReadFile(ctx, pod, constants.BuildContainerName, constants.V4V5BuildTimingPath)
	if err != nil {
		return o.fallbackPodLogs(ctx, pod)
	}

	lines, err := decode(logs, timings)
	if err != nil {
		logger.Warnf("failed to decode build log timing for job %s: %s", jobName, err)
		return nil
	}
	return lines
}

func (o *Orchestrator) fallbackPodLogs(ctx context.Context, pod string) []types.LogLine {
	req := o.kube.Clientset.CoreV1().Pods(o.kube.Namespace).GetLogs(pod, &corev1.PodLogOptions{Container: constants.BuildContainerName})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil
	}
	defer stream.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := stream.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil
	}
	return []types.LogLine{{Timestamp: "", Content: string(buf)}}
}

func (o *Orchestrator) firstPodForJob(ctx context.Context, jobName string) (string, error) {
	list, err := o.kube.Clientset.CoreV1().Pods(o.kube.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return "", err
	}
	if len(list.Items) == 0 {
		return "", nil
	}
	return list.Items[0].Name, nil
}
