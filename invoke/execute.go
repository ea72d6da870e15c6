package invoke

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/metrics"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/open-runtimes/executor/types"
	"github.com/open-runtimes/executor/utils"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
)

// Result is the collected outcome of one proxied invocation, independent of
// how the caller ultimately renders it (JSON vs multipart).
type Result struct {
	StatusCode int
	Headers    map[string][]string
	Body       string
	Logs       string
	Errors     string
	Duration   float64
	StartTime  float64
}

// Invoke proxies a single execution call into the runtime's live container,
// cold-starting or creating the runtime first if needed.
func (inv *Invoker) Invoke(ctx context.Context, runtimeID string, req types.InvokeRequest) (invokeResult *Result, invokeErr *apierrors.Error) {
	prepareStart := time.Now()
	defer func() {
		metrics.InvocationDuration.Observe(time.Since(prepareStart).Seconds())
		outcome := "succeeded"
		if invokeErr != nil {
			outcome = "error"
		}
		metrics.InvocationsTotal.WithLabelValues(outcome).Inc()
	}()
	if req.Timeout <= 0 {
		req.Timeout = int(constants.DefaultExecutionTimeout.Seconds())
	}
	timeout := time.Duration(req.Timeout) * time.Second

	exists, err := inv.state.Exists(ctx, runtimeID)
	if err != nil {
		return nil, apierrors.RuntimeFailed(err.Error())
	}
	if !exists {
		if req.Image == "" || req.Source == "" {
			return nil, apierrors.ExecutionBadRequest("image and source are required to create a runtime on the fly")
		}
		if _, apiErr := inv.orchestrator.Create(ctx, types.CreateRuntimeRequest{
			RuntimeID:   runtimeID,
			Image:       req.Image,
			Entrypoint:  req.Entrypoint,
			Source:      req.Source,
			Destination: req.Destination,
			Command:     req.Command,
			Variables:   req.Variables,
			Timeout:     req.Timeout,
			CPUs:        req.CPUs,
			Memory:      req.Memory,
			Version:     req.Version,
		}); apiErr != nil {
			return nil, apiErr
		}
		if err := inv.state.WaitReady(ctx, runtimeID, timeout); err != nil {
			return nil, apierrors.As(err)
		}
	}

	remainingTimeout := timeout - time.Since(prepareStart)
	if remainingTimeout <= 0 {
		return nil, apierrors.ExecutionTimeout("Execution timed out before invocation could start")
	}

	_ = inv.state.Update(ctx, runtimeID, map[string]string{runtimestate.FieldUpdated: fmt.Sprintf("%d", utils.NowMillis())})
	if err := inv.state.WaitReady(ctx, runtimeID, remainingTimeout); err != nil {
		return nil, apierrors.As(err)
	}

	dep, err := inv.kube.Clientset.AppsV1().Deployments(inv.kube.Namespace).Get(ctx, runtimestate.DeploymentName(runtimeID), metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return nil, apierrors.RuntimeNotFound(fmt.Sprintf("Runtime %q not found", runtimeID))
		}
		return nil, apierrors.GeneralUnknown(err.Error())
	}

	secret := dep.Annotations[runtimestate.Annotation(runtimestate.FieldSecret)]
	if secret == "" {
		return nil, apierrors.RuntimeNotFound("Runtime secret not found. Please re-create the runtime.")
	}
	version := dep.Annotations[runtimestate.Annotation(runtimestate.FieldVersion)]

	if err := inv.coldStart(ctx, dep.Name); err != nil {
		return nil, err
	}

	podIP, err := inv.firstPodIP(ctx, runtimeID)
	if err != nil {
		return nil, err
	}
	if podIP == "" {
		return nil, apierrors.RuntimeNotFound(fmt.Sprintf("No pod found for runtime %q", runtimeID))
	}

	listening := dep.Annotations[runtimestate.Annotation(runtimestate.FieldListening)] == "1"
	if !listening {
		if !runtimestate.WaitListening(ctx, podIP, remainingTimeout) {
			return nil, apierrors.RuntimeTimeout("Runtime did not start listening in time")
		}
		_ = inv.state.Update(ctx, runtimeID, map[string]string{runtimestate.FieldListening: "1"})
	}

	result, apiErr := inv.proxy(ctx, podIP, version, secret, remainingTimeout, req)
	if apiErr != nil {
		return nil, apiErr
	}

	_ = inv.state.Update(ctx, runtimeID, map[string]string{
		runtimestate.FieldLastExecutionTime: fmt.Sprintf("%d", utils.NowMillis()),
		runtimestate.FieldUpdated:           fmt.Sprintf("%d", utils.NowMillis()),
	})

	result.StartTime = float64(prepareStart.UnixMilli()) / 1000
	result.Duration = time.Since(prepareStart).Seconds()
	return result, nil
}

// coldStart patches replicas 0->1 if needed and polls readyReplicas==1 for
// up to 60s.
func (inv *Invoker) coldStart(ctx context.Context, deploymentName string) *apierrors.Error {
	deployments := inv.kube.Clientset.AppsV1().Deployments(inv.kube.Namespace)
	dep, err := deployments.Get(ctx, deploymentName, metav1.GetOptions{})
	if err != nil {
		return apierrors.GeneralUnknown(err.Error())
	}

	if dep.Spec.Replicas == nil || *dep.Spec.Replicas == 0 {
		patch := []byte(`[{"op":"replace","path":"/spec/replicas","value":1}]`)
		if _, err := deployments.Patch(ctx, deploymentName, k8stypes.JSONPatchType, patch, metav1.PatchOptions{}); err != nil {
			return apierrors.GeneralUnknown(err.Error())
		}
	}

	deadline := time.Now().Add(coldStartReadyTimeout)
	for {
		dep, err := deployments.Get(ctx, deploymentName, metav1.GetOptions{})
		if err != nil {
			return apierrors.GeneralUnknown(err.Error())
		}
		if dep.Status.ReadyReplicas == 1 {
			return nil
		}
		if time.Now().After(deadline) {
			return apierrors.RuntimeTimeoutWithCode("Runtime did not become ready in time", http.StatusGatewayTimeout)
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return apierrors.RuntimeTimeoutWithCode("Runtime did not become ready in time", http.StatusGatewayTimeout)
		}
	}
}

func (inv *Invoker) firstPodIP(ctx context.Context, runtimeID string) (string, *apierrors.Error) {
	list, err := inv.kube.Clientset.CoreV1().Pods(inv.kube.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", constants.LabelRuntimeID, runtimeID),
	})
	if err != nil {
		return "", apierrors.GeneralUnknown(err.Error())
	}
	if len(list.Items) == 0 {
		return "", nil
	}
	return list.Items[0].Status.PodIP, nil
}

// proxy normalizes the path, attaches protocol-specific auth headers,
// forwards the call, and collects the response plus (v5 only) extracted
// log/error files.
func (inv *Invoker) proxy(ctx context.Context, podIP, version, secret string, remainingTimeout time.Duration, req types.InvokeRequest) (*Result, *apierrors.Error) {
	path := req.Path
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := fmt.Sprintf("http://%s:%d%s", podIP, constants.RuntimePort, path)

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		body = strings.NewReader(req.Body)
	}

	transportDeadline := remainingTimeout + 5*time.Second
	reqCtx, cancel := context.WithTimeout(ctx, transportDeadline)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return nil, apierrors.GeneralUnknown(err.Error())
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if version == constants.VersionV2 {
		httpReq.Header.Set("x-internal-challenge", secret)
		httpReq.Host = ""
		httpReq.Header.Set("Content-Type", "application/json")
	} else {
		httpReq.Header.Set("Authorization", "Basic "+basicAuth("opr", secret))
		httpReq.Header.Set("x-open-runtimes-secret", secret)
		httpReq.Header.Set("x-open-runtimes-timeout", fmt.Sprintf("%d", maxInt(int(math.Floor(remainingTimeout.Seconds())), 1)))
		logging := "disabled"
		if req.Logging {
			logging = "enabled"
		}
		httpReq.Header.Set("x-open-runtimes-logging", logging)
	}

	client := &http.Client{Timeout: transportDeadline}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, apierrors.ExecutionTimeout(fmt.Sprintf("Execution proxy call failed: %s", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.ExecutionTimeout(fmt.Sprintf("Failed to read execution response: %s", err))
	}

	headers := collectHeaders(resp.Header)
	logID, _ := url.QueryUnescape(resp.Header.Get("x-open-runtimes-log-id"))

	result := &Result{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       string(bodyBytes),
	}

	if version == constants.VersionV5 && req.Logging && logID != "" {
		logs, errs := inv.extractLogs(ctx, podIP, logID)
		result.Logs = logs
		result.Errors = errs
	}

	return result, nil
}

// collectHeaders lowercases header names, drops internal
// x-open-runtimes-*, and preserves multi-value ordering oldest-first.
func collectHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, values := range h {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "x-open-runtimes-") {
			continue
		}
		out[lower] = append([]string(nil), values...)
	}
	return out
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
