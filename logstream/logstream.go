// Package logstream implements the log streamer (C7): a long-lived stream
// that emits build or runtime logs as timing data accrues.
package logstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/constants"
	"github.com/open-runtimes/executor/kube"
	"github.com/open-runtimes/executor/logdecoder"
	"github.com/open-runtimes/executor/podio"
	"github.com/open-runtimes/executor/runtimestate"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Streamer drives one GET /runtimes/{id}/logs request.
type Streamer struct {
	kube  *kube.Client
	state *runtimestate.Accessor
	pods  *podio.Adapter
}

func New(k *kube.Client) *Streamer {
	return &Streamer{
		kube:  k,
		state: runtimestate.New(k),
		pods:  podio.New(k.Clientset, k.RestConfig, k.Namespace),
	}
}

const (
	existTimeout   = 5 * time.Second
	statusTimeout  = 10 * time.Second
	flushInterval  = 1 * time.Second
	livenessPeriod = 500 * time.Millisecond
)

// Stream writes one formatted line per emitted log entry to emit, blocking
// until the deadline or the runtime's lifecycle ends the stream early.
func (s *Streamer) Stream(ctx context.Context, runtimeID string, timeout time.Duration, emit func(string)) *apierrors.Error {
	depName := runtimestate.DeploymentName(runtimeID)

	if !s.waitDeploymentExists(ctx, depName) {
		return apierrors.RuntimeNotFound(fmt.Sprintf("Runtime %q not found", runtimeID))
	}

	dep, err := s.kube.Clientset.AppsV1().Deployments(s.kube.Namespace).Get(ctx, depName, metav1.GetOptions{})
	if err != nil {
		return apierrors.As(err)
	}
	version := dep.Annotations[runtimestate.Annotation(runtimestate.FieldVersion)]
	if version == constants.VersionV2 {
		return nil
	}

	if !s.waitStatus(ctx, runtimeID) {
		return apierrors.RuntimeTimeout("Runtime status did not appear in time")
	}

	pod, container, err := s.locateSourcePod(ctx, runtimeID)
	if err != nil {
		return apierrors.As(err)
	}
	if pod == "" {
		return apierrors.RuntimeNotFound(fmt.Sprintf("No log source pod found for runtime %q", runtimeID))
	}

	logsPath := fmt.Sprintf("%s/logs.txt", constants.V4V5BuildLogDir)
	timingsPath := fmt.Sprintf("%s/timings.txt", constants.V4V5BuildLogDir)

	if !s.waitFiles(ctx, runtimeID, pod, container, logsPath, timingsPath, timeout) {
		return nil
	}

	logs, err4 := s.pods.ReadFile(ctx, pod, container, logsPath)
	if err4 != nil {
		return nil
	}
	intro := logdecoder.LogOffset([]byte(logs))

	var mu sync.Mutex
	cursor := 0
	var buf strings.Builder

	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()

	streamCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tailHandle := s.pods.TailFile(streamCtx, pod, container, timingsPath, func(chunk []byte) {
		fresh, err := s.pods.ReadFile(streamCtx, pod, container, logsPath)
		if err != nil {
			return
		}
		entries, err := logdecoder.ParseTiming(chunk, time.Time{})
		if err != nil {
			return
		}

		mu.Lock()
		for _, e := range entries {
			n := e.Length
			if n < 0 {
				n = -n
			}
			start := intro + cursor
			end := start + n
			if start < 0 {
				start = 0
			}
			if end > len(fresh) {
				end = len(fresh)
			}
			if start > end {
				start = end
			}
			content := fresh[start:end]
			escaped := strings.ReplaceAll(content, "\n", "\\n")
			buf.WriteString(fmt.Sprintf("%s %s\n", e.Timestamp, escaped))
			cursor += e.Length
		}
		mu.Unlock()
	}, func(error) {})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-flushTicker.C:
				mu.Lock()
				out := buf.String()
				buf.Reset()
				mu.Unlock()
				if out != "" {
					emit(out)
				}

				if st, err := s.state.Status(ctx, runtimeID); err != nil || st == nil || st.Initialised {
					return
				}
			case <-streamCtx.Done():
				return
			}
		}
	}()

	<-done
	tailHandle.Cancel()

	mu.Lock()
	remaining := buf.String()
	mu.Unlock()
	if remaining != "" {
		emit(remaining)
	}

	if streamCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return apierrors.LogsTimeout(fmt.Sprintf("Log stream for runtime %q timed out", runtimeID))
	}
	return nil
}

func (s *Streamer) waitDeploymentExists(ctx context.Context, depName string) bool {
	deadline := time.Now().Add(existTimeout)
	for {
		_, err := s.kube.Clientset.AppsV1().Deployments(s.kube.Namespace).Get(ctx, depName, metav1.GetOptions{})
		if err == nil {
			return true
		}
		if !k8serrors.IsNotFound(err) {
			return false
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (s *Streamer) waitStatus(ctx context.Context, runtimeID string) bool {
	deadline := time.Now().Add(statusTimeout)
	for {
		st, err := s.state.Status(ctx, runtimeID)
		if err == nil && st != nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// locateSourcePod finds pods belonging to the most recent build Job for
// this runtime; failing that, pods with role=runtime.
func (s *Streamer) locateSourcePod(ctx context.Context, runtimeID string) (pod, container string, err error) {
	jobs, err := s.kube.Clientset.BatchV1().Jobs(s.kube.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=%s", constants.LabelRole, constants.RoleBuild, constants.LabelRuntimeID, runtimeID),
	})
	if err == nil && len(jobs.Items) > 0 {
		latest := jobs.Items[0]
		for _, j := range jobs.Items {
			if j.CreationTimestamp.After(latest.CreationTimestamp.Time) {
				latest = j
			}
		}
		pods, err := s.kube.Clientset.CoreV1().Pods(s.kube.Namespace).List(ctx, metav1.ListOptions{
			LabelSelector: "job-name=" + latest.Name,
		})
		if err == nil && len(pods.Items) > 0 {
			return pods.Items[0].Name, constants.BuildContainerName, nil
		}
	}

	pods, err := s.kube.Clientset.CoreV1().Pods(s.kube.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=%s", constants.LabelRole, constants.RoleRuntime, constants.LabelRuntimeID, runtimeID),
	})
	if err != nil {
		return "", "", err
	}
	if len(pods.Items) == 0 {
		return "", "", nil
	}
	return pods.Items[0].Name, constants.RuntimeContainerName, nil
}

func (s *Streamer) waitFiles(ctx context.Context, runtimeID, pod, container, logsPath, timingsPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if st, err := s.state.Status(ctx, runtimeID); err == nil && st == nil {
			return false
		}

		logsExist := s.pods.FileExists(ctx, pod, container, logsPath)
		timingsExist := s.pods.FileExists(ctx, pod, container, timingsPath)
		if logsExist && timingsExist {
			content, err := s.pods.ReadFile(ctx, pod, container, timingsPath)
			if err == nil && strings.TrimSpace(content) != "" {
				return true
			}
		}

		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(livenessPeriod)
	}
}
