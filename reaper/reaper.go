// Package reaper implements the leader-elected background loop that scales
// idle runtimes to zero.
package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/kube"
	"github.com/open-runtimes/executor/metrics"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/open-runtimes/executor/utils/logger"
	"github.com/open-runtimes/executor/utils/telemetry"
	coordinationv1 "k8s.io/api/coordination/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

// Reaper owns one maintenance loop per process.
type Reaper struct {
	kube     *kube.Client
	state    *runtimestate.Accessor
	identity string

	interval          time.Duration
	inactiveThreshold time.Duration

	mu       sync.Mutex
	stopping bool
	timer    *time.Timer
}

// New constructs a Reaper. identity should be unique per process, typically
// "{hostname}-{pid}".
func New(k *kube.Client, interval, inactiveThreshold time.Duration, identity string) *Reaper {
	return &Reaper{
		kube:              k,
		state:             runtimestate.New(k),
		identity:          identity,
		interval:          interval,
		inactiveThreshold: inactiveThreshold,
	}
}

// Run blocks, sleeping interval between cycles, until Stop is called.
func (r *Reaper) Run(ctx context.Context) {
	for {
		if !r.sleep(r.interval) {
			return
		}

		acquired, err := r.acquireLease(ctx)
		if err != nil {
			logger.Errorf("reaper: failed to acquire lease: %s", err)
			continue
		}
		if !acquired {
			metrics.ReaperCycles.WithLabelValues("skipped").Inc()
			continue
		}

		if err := r.reapCycle(ctx); err != nil {
			logger.Errorf("reaper: cycle failed: %s", err)
		}

		if r.isStopping() {
			return
		}
	}
}

// Stop requests the loop exit promptly, cancelling any in-flight sleep.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopping = true
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *Reaper) isStopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopping
}

// sleep waits for d or an early Stop, returning false if the loop should
// exit.
func (r *Reaper) sleep(d time.Duration) bool {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return false
	}
	r.timer = time.NewTimer(d)
	timer := r.timer
	r.mu.Unlock()

	<-timer.C
	return !r.isStopping()
}

// acquireLease is a four-outcome predicate: 404 -> create+acquire; self
// holder -> renew; stale -> steal; else -> skip.
func (r *Reaper) acquireLease(ctx context.Context) (bool, error) {
	leases := r.kube.Clientset.CoordinationV1().Leases(r.kube.Namespace)
	now := metav1.NowMicro()

	lease, err := leases.Get(ctx, constants.MaintenanceLeaseName, metav1.GetOptions{})
	if err != nil {
		if !k8serrors.IsNotFound(err) {
			return false, err
		}
		holder := r.identity
		durationSeconds := int32(constants.LeaseDuration.Seconds())
		_, err := leases.Create(ctx, &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: constants.MaintenanceLeaseName},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &holder,
				AcquireTime:          &now,
				RenewTime:            &now,
				LeaseDurationSeconds: &durationSeconds,
			},
		}, metav1.CreateOptions{})
		if err != nil {
			if k8serrors.IsAlreadyExists(err) {
				metrics.ReaperCycles.WithLabelValues("skipped").Inc()
				return false, nil
			}
			return false, err
		}
		metrics.ReaperCycles.WithLabelValues("acquired").Inc()
		return true, nil
	}

	if lease.Spec.HolderIdentity != nil && *lease.Spec.HolderIdentity == r.identity {
		lease.Spec.RenewTime = &now
		if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
			return false, err
		}
		metrics.ReaperCycles.WithLabelValues("renewed").Inc()
		return true, nil
	}

	stale := lease.Spec.RenewTime == nil ||
		now.Time.Sub(lease.Spec.RenewTime.Time) > constants.LeaseDuration
	if stale {
		holder := r.identity
		durationSeconds := int32(constants.LeaseDuration.Seconds())
		lease.Spec.HolderIdentity = &holder
		lease.Spec.AcquireTime = &now
		lease.Spec.RenewTime = &now
		lease.Spec.LeaseDurationSeconds = &durationSeconds
		if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
			if k8serrors.IsConflict(err) {
				metrics.ReaperCycles.WithLabelValues("skipped").Inc()
				return false, nil
			}
			return false, err
		}
		metrics.ReaperCycles.WithLabelValues("acquired").Inc()
		return true, nil
	}

	metrics.ReaperCycles.WithLabelValues("skipped").Inc()
	return false, nil
}

// reapCycle lists every runtime Deployment and scales idle ones to zero.
func (r *Reaper) reapCycle(ctx context.Context) error {
	deployments := r.kube.Clientset.AppsV1().Deployments(r.kube.Namespace)
	list, err := deployments.List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", constants.LabelRole, constants.RoleRuntime),
	})
	if err != nil {
		return fmt.Errorf("failed to list runtime deployments: %s", err)
	}

	now := time.Now().UnixMilli()
	for _, dep := range list.Items {
		if r.isStopping() {
			return nil
		}

		replicas := int32(0)
		if dep.Spec.Replicas != nil {
			replicas = *dep.Spec.Replicas
		}
		if replicas != 1 {
			continue
		}

		// lastExec == 0 means the annotation was never stamped. Replicas only
		// reach 1 via an invocation that stamps it, so this shouldn't happen
		// in practice; skip rather than treat it as infinitely idle.
		lastExec := parseMillis(dep.Annotations[runtimestate.Annotation(runtimestate.FieldLastExecutionTime)])
		if lastExec == 0 || time.Duration(now-lastExec)*time.Millisecond <= r.inactiveThreshold {
			continue
		}

		id := dep.Labels[constants.LabelRuntimeID]
		if err := r.scaleToZero(ctx, dep.Name); err != nil {
			logger.Errorf("reaper: failed to scale %s to zero: %s", dep.Name, err)
			continue
		}
		metrics.ReapedRuntimes.Inc()
		telemetry.SendEvent(id, telemetry.EventReaped)
		logger.Infof("reaper: scaled runtime %s to zero (idle)", id)
	}
	return nil
}

func (r *Reaper) scaleToZero(ctx context.Context, deploymentName string) error {
	patch := []byte(`[{"op":"replace","path":"/spec/replicas","value":0}]`)
	_, err := r.kube.Clientset.AppsV1().Deployments(r.kube.Namespace).Patch(
		ctx, deploymentName, types.JSONPatchType, patch, metav1.PatchOptions{})
	return err
}

func parseMillis(s string) int64 {
	if s == "" {
		return 0
	}
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0
	}
	return v
}
