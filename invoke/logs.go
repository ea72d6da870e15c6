package invoke

import (
	"context"
	"fmt"

	"github.com/open-runtimes/executor/constants"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// extractLogs reads the per-invocation log/error files the v5 in-pod server
// writes under /mnt/logs, truncating each at 1 MiB. Missing files are
// ignored silently.
func (inv *Invoker) extractLogs(ctx context.Context, podIP, logID string) (logs, errs string) {
	pod, err := inv.podForIP(ctx, podIP)
	if err != nil || pod == "" {
		return "", ""
	}

	logs = inv.readTruncated(ctx, pod, fmt.Sprintf("%s/%s_logs.log", constants.RuntimeLogDir, logID))
	errs = inv.readTruncated(ctx, pod, fmt.Sprintf("%s/%s_errors.log", constants.RuntimeLogDir, logID))
	return logs, errs
}

func (inv *Invoker) readTruncated(ctx context.Context, pod, path string) string {
	if !inv.pods.FileExists(ctx, pod, constants.RuntimeContainerName, path) {
		return ""
	}
	content, err := inv.pods.ReadFile(ctx, pod, constants.RuntimeContainerName, path)
	if err != nil {
		return ""
	}
	if len(content) > maxLogBytesTruncation {
		return content[:maxLogBytesTruncation] + "\n... [truncated]"
	}
	return content
}

func (inv *Invoker) podForIP(ctx context.Context, podIP string) (string, error) {
	list, err := inv.kube.Clientset.CoreV1().Pods(inv.kube.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", constants.LabelRole, constants.RoleRuntime),
	})
	if err != nil {
		return "", err
	}
	for _, p := range list.Items {
		if p.Status.PodIP == podIP {
			return p.Name, nil
		}
	}
	return "", nil
}
