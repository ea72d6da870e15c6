package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/manifests"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/open-runtimes/executor/utils"
	"github.com/open-runtimes/executor/utils/logger"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DeleteResult is the best-effort status message returned by Delete.
type DeleteResult struct {
	Message string
	Code    int
}

// Delete is best-effort: the Service and cleanup Job errors are swallowed,
// only the Deployment delete's outcome shapes the response.
func (o *Orchestrator) Delete(ctx context.Context, runtimeID string) (*DeleteResult, *apierrors.Error) {
	name := runtimestate.DeploymentName(runtimeID)
	err := o.kube.Clientset.AppsV1().Deployments(o.kube.Namespace).Delete(ctx, name, metav1.DeleteOptions{})

	var result *DeleteResult
	if err != nil {
		if k8serrors.IsNotFound(err) {
			result = &DeleteResult{Message: fmt.Sprintf("Runtime %q not found or already deleted", runtimeID), Code: 404}
		} else if strings.Contains(err.Error(), "already in progress") {
			result = &DeleteResult{Message: fmt.Sprintf("Runtime %q deletion already in progress", runtimeID), Code: 200}
		} else {
			return nil, apierrors.GeneralUnknown(err.Error())
		}
	} else {
		result = &DeleteResult{Message: fmt.Sprintf("Runtime %q has been deleted", runtimeID), Code: 200}
	}

	if err := o.kube.Clientset.CoreV1().Services(o.kube.Namespace).Delete(ctx, runtimestate.ServiceName(runtimeID), metav1.DeleteOptions{}); err != nil {
		logger.Warnf("failed to delete service for runtime %s (swallowed): %s", runtimeID, err)
	}

	o.enqueueCleanup(ctx, runtimeID)

	return result, nil
}

// enqueueCleanup creates the best-effort bulk-delete Job for the runtime's
// object-store prefix; all failures are swallowed.
func (o *Orchestrator) enqueueCleanup(ctx context.Context, runtimeID string) {
	suffix, err := utils.RandomHex(4)
	if err != nil {
		return
	}
	jobName := fmt.Sprintf("delete-%s-%s", runtimeID, suffix)
	job := manifests.CleanupJob(runtimeID, jobName, o.kube.Namespace, o.bucket, runtimeID+"/", 3600)
	if _, err := o.kube.Clientset.BatchV1().Jobs(o.kube.Namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		logger.Warnf("failed to enqueue cleanup job for runtime %s (swallowed): %s", runtimeID, err)
	}
}
