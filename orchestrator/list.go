package orchestrator

import (
	"context"
	"fmt"

	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/open-runtimes/executor/types"
	appsv1 "k8s.io/api/apps/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ListResult carries the page of runtimes plus the cluster's native
// pagination cursor.
type ListResult struct {
	Items     []types.RuntimeDescriptor
	Continue  string
	Remaining int64
	Limit     int64
}

// List returns a page of Deployments labeled role=runtime, clamping limit to
// [1, 100] with a default of 25.
func (o *Orchestrator) List(ctx context.Context, limit int64, continueToken string) (*ListResult, *apierrors.Error) {
	if limit <= 0 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	list, err := o.kube.Clientset.AppsV1().Deployments(o.kube.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", constants.LabelRole, constants.RoleRuntime),
		Limit:         limit,
		Continue:      continueToken,
	})
	if err != nil {
		return nil, apierrors.GeneralUnknown(err.Error())
	}

	items := make([]types.RuntimeDescriptor, 0, len(list.Items))
	for _, dep := range list.Items {
		items = append(items, projectDescriptor(&dep))
	}

	remaining := int64(0)
	if list.RemainingItemCount != nil {
		remaining = *list.RemainingItemCount
	}

	return &ListResult{
		Items:     items,
		Continue:  list.Continue,
		Remaining: remaining,
		Limit:     limit,
	}, nil
}

// Describe returns the external shape of a single runtime Deployment.
func (o *Orchestrator) Describe(ctx context.Context, runtimeID string) (*types.RuntimeDescriptor, *apierrors.Error) {
	dep, err := o.kube.Clientset.AppsV1().Deployments(o.kube.Namespace).Get(ctx, runtimestate.DeploymentName(runtimeID), metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return nil, apierrors.RuntimeNotFound(fmt.Sprintf("Runtime %q not found", runtimeID))
		}
		return nil, apierrors.GeneralUnknown(err.Error())
	}

	d := projectDescriptor(dep)
	return &d, nil
}

// projectDescriptor maps a Deployment's annotations into the external
// runtime shape. Timestamps are seconds (float) derived from millisecond
// annotations.
func projectDescriptor(dep *appsv1.Deployment) types.RuntimeDescriptor {
	ann := dep.Annotations
	image := ""
	if len(dep.Spec.Template.Spec.Containers) > 0 {
		image = dep.Spec.Template.Spec.Containers[0].Image
	}

	return types.RuntimeDescriptor{
		Version:     ann[runtimestate.Annotation(runtimestate.FieldVersion)],
		Created:     parseMillisFloat(ann[runtimestate.Annotation(runtimestate.FieldCreated)]),
		Updated:     parseMillisFloat(ann[runtimestate.Annotation(runtimestate.FieldUpdated)]),
		Name:        dep.Name,
		Hostname:    ann[runtimestate.Annotation(runtimestate.FieldHostname)],
		Status:      ann[runtimestate.Annotation(runtimestate.FieldStatus)],
		Key:         ann[runtimestate.Annotation(runtimestate.FieldSecret)],
		Listening:   boolToInt(ann[runtimestate.Annotation(runtimestate.FieldListening)] == "1"),
		Image:       image,
		Initialised: boolToInt(ann[runtimestate.Annotation(runtimestate.FieldInitialised)] == "1"),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseMillisFloat(s string) float64 {
	return float64(parseMillis(s)) / 1000
}
