package runtimestate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/kube"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

const pollInterval = 500 * time.Millisecond

// Status is the lifecycle snapshot derived from a Deployment's annotations.
type Status struct {
	Status      string
	Initialised bool
	Listening   bool
	Created     int64
	Updated     int64
}

// Accessor reads and writes runtime lifecycle state against one namespace.
type Accessor struct {
	kube *kube.Client
}

func New(k *kube.Client) *Accessor {
	return &Accessor{kube: k}
}

// Exists reports whether dep-{id} currently exists.
func (a *Accessor) Exists(ctx context.Context, id string) (bool, error) {
	_, err := a.kube.Clientset.AppsV1().Deployments(a.kube.Namespace).Get(ctx, DeploymentName(id), metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Status returns the derived lifecycle snapshot, or nil if the Deployment is
// absent.
func (a *Accessor) Status(ctx context.Context, id string) (*Status, error) {
	dep, err := a.kube.Clientset.AppsV1().Deployments(a.kube.Namespace).Get(ctx, DeploymentName(id), metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	ann := dep.Annotations
	return &Status{
		Status:      ann[Annotation(FieldStatus)],
		Initialised: ann[Annotation(FieldInitialised)] == "1",
		Listening:   ann[Annotation(FieldListening)] == "1",
		Created:     parseInt64(ann[Annotation(FieldCreated)]),
		Updated:     parseInt64(ann[Annotation(FieldUpdated)]),
	}, nil
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// escapeAnnotationField escapes '/' and '~' per RFC 6901 so the field name
// can appear as one JSON-patch path segment.
func escapeAnnotationField(field string) string {
	field = strings.ReplaceAll(field, "~", "~0")
	field = strings.ReplaceAll(field, "/", "~1")
	return field
}

// Update applies a JSON-patch "replace" for every field present in patch
// against /metadata/annotations/appwrite.io~1{field}. Last write wins; there
// is no check-and-set.
func (a *Accessor) Update(ctx context.Context, id string, patch map[string]string) error {
	if len(patch) == 0 {
		return nil
	}

	ops := make([]patchOp, 0, len(patch))
	for field, value := range patch {
		ops = append(ops, patchOp{
			Op:    "replace",
			Path:  "/metadata/annotations/" + escapeAnnotationField(Annotation(field)),
			Value: value,
		})
	}

	body, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal annotation patch: %s", err)
	}

	_, err = a.kube.Clientset.AppsV1().Deployments(a.kube.Namespace).Patch(
		ctx, DeploymentName(id), types.JSONPatchType, body, metav1.PatchOptions{})
	return err
}

// WaitReady polls Status every 500ms until status != "pending", failing with
// RuntimeTimeout once timeout elapses.
func (a *Accessor) WaitReady(ctx context.Context, id string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st, err := a.Status(ctx, id)
		if err != nil {
			return err
		}
		if st != nil && st.Status != "pending" && st.Status != "" {
			return nil
		}
		if time.Now().After(deadline) {
			return apierrors.RuntimeTimeout("Runtime failed to reach ready state in time")
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

// WaitListening polls an HTTP GET to http://{podIP}:3000/ every 500ms with a
// 2s per-attempt deadline. Any TCP-level response, including 4xx, means
// listening; application-level status codes never cause a false result.
func WaitListening(ctx context.Context, podIP string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}

	for {
		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://%s:3000/", podIP), nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				_ = resp.Body.Close()
				cancel()
				return true
			}
		}
		cancel()

		if time.Now().After(deadline) {
			return false
		}
		if sleep(ctx, pollInterval) != nil {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
