// Package invoke implements the invocation path (C5): cold-starting a
// runtime, waiting for in-pod readiness, proxying an HTTP call, and
// collecting logs/errors.
package invoke

import (
	"context"
	"time"

	"github.com/open-runtimes/executor/kube"
	"github.com/open-runtimes/executor/orchestrator"
	"github.com/open-runtimes/executor/podio"
	"github.com/open-runtimes/executor/runtimestate"
)

// Invoker proxies calls into warm or cold runtimes.
type Invoker struct {
	kube         *kube.Client
	state        *runtimestate.Accessor
	orchestrator *orchestrator.Orchestrator
	pods         *podio.Adapter
}

func New(k *kube.Client, orch *orchestrator.Orchestrator) *Invoker {
	return &Invoker{
		kube:         k,
		state:        runtimestate.New(k),
		orchestrator: orch,
		pods:         podio.New(k.Clientset, k.RestConfig, k.Namespace),
	}
}

const (
	coldStartReadyTimeout = 60 * time.Second
	maxLogBytesTruncation = 1 << 20
)
