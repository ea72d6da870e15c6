// Package podio reads, tests for existence, and tails files inside pod
// containers via streamed remote exec, the only way to observe pod-local
// filesystem state from outside the pod.
package podio

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/open-runtimes/executor/constants"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	kexec "k8s.io/client-go/util/exec"
)

// PodReadError is returned by ReadFile when the remote command terminates
// unsuccessfully; it carries the captured stderr.
type PodReadError struct {
	Stderr string
	Cause  error
}

func (e *PodReadError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("pod read failed: %s", e.Stderr)
	}
	return fmt.Sprintf("pod read failed: %s", e.Cause)
}

func (e *PodReadError) Unwrap() error { return e.Cause }

// Adapter execs into pods to read files the in-pod builder/runtime writes.
type Adapter struct {
	clientset kubernetes.Interface
	config    *rest.Config
	namespace string
}

func New(clientset kubernetes.Interface, config *rest.Config, namespace string) *Adapter {
	return &Adapter{clientset: clientset, config: config, namespace: namespace}
}

func (a *Adapter) newExecutor(pod, container string, command []string) (remotecommand.Executor, error) {
	req := a.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(a.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdin:     false,
			Stdout:    true,
			Stderr:    true,
			TTY:       false,
		}, scheme.ParameterCodec)

	return remotecommand.NewSPDYExecutor(a.config, "POST", req.URL())
}

// ReadFile runs `cat path` in the pod and returns the accumulated stdout.
func (a *Adapter) ReadFile(ctx context.Context, pod, container, path string) (string, error) {
	exec, err := a.newExecutor(pod, container, []string{"cat", path})
	if err != nil {
		return "", fmt.Errorf("failed to build exec request: %s", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
		Tty:    false,
	})
	if err != nil {
		return "", &PodReadError{Stderr: stderr.String(), Cause: err}
	}
	return stdout.String(), nil
}

// FileExists runs `test -f path`; any non-success termination (including a
// transport error) maps to false rather than an error.
func (a *Adapter) FileExists(ctx context.Context, pod, container, path string) bool {
	exec, err := a.newExecutor(pod, container, []string{"test", "-f", path})
	if err != nil {
		return false
	}

	var discard bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &discard,
		Stderr: &discard,
		Tty:    false,
	})
	return err == nil
}

// RunCommand execs `sh -c command` in the pod, with an overall deadline
// carried by ctx, and returns combined stdout (stderr appended on failure).
func (a *Adapter) RunCommand(ctx context.Context, pod, container, command string) (string, error) {
	exec, err := a.newExecutor(pod, container, []string{"sh", "-c", command})
	if err != nil {
		return "", fmt.Errorf("failed to build exec request: %s", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
		Tty:    false,
	})
	if err != nil {
		readErr := &PodReadError{Stderr: stderr.String(), Cause: err}
		if _, ok := err.(kexec.ExitError); ok {
			// non-zero exit is the command's own fault, not the transport's; callers
			// use constants.ErrExecutionFailed to tell the two apart before retrying.
			return stdout.String(), fmt.Errorf("%s: %w", readErr, constants.ErrExecutionFailed)
		}
		return stdout.String(), readErr
	}
	return stdout.String(), nil
}

// TailHandle cancels an in-flight TailFile call.
type TailHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel requests teardown of the underlying transport and blocks until no
// further chunks will be delivered.
func (h *TailHandle) Cancel() {
	h.cancel()
	<-h.done
}

type chunkWriter struct {
	onChunk func([]byte)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		cp := make([]byte, len(p))
		copy(cp, p)
		w.onChunk(cp)
	}
	return len(p), nil
}

type errAccumulator struct {
	buf bytes.Buffer
}

func (w *errAccumulator) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// TailFile runs `tail -F path`, delivering stdout chunks to onChunk as they
// arrive and delivering at most one error to onError. The returned handle
// tears down the underlying transport on Cancel, after which no further
// chunks are delivered.
func (a *Adapter) TailFile(ctx context.Context, pod, container, path string, onChunk func([]byte), onError func(error)) *TailHandle {
	tailCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		exec, err := a.newExecutor(pod, container, []string{"tail", "-F", path})
		if err != nil {
			onError(fmt.Errorf("failed to build exec request: %s", err))
			return
		}

		stderr := &errAccumulator{}
		err = exec.StreamWithContext(tailCtx, remotecommand.StreamOptions{
			Stdout: &chunkWriter{onChunk: onChunk},
			Stderr: stderr,
			Tty:    false,
		})
		if err != nil && tailCtx.Err() == nil {
			if stderr.buf.Len() > 0 {
				onError(fmt.Errorf("%s", stderr.buf.String()))
			} else {
				onError(err)
			}
		}
	}()

	return &TailHandle{cancel: cancel, done: done}
}

var _ io.Writer = (*chunkWriter)(nil)
