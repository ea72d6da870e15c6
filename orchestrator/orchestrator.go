// Package orchestrator implements the lifecycle orchestrator (C4): create,
// delete, list, and describe runtimes, driving the build Job to completion
// and binding the Service+Deployment pair.
package orchestrator

import (
	"github.com/open-runtimes/executor/kube"
	"github.com/open-runtimes/executor/podio"
	"github.com/open-runtimes/executor/runtimestate"
	"github.com/open-runtimes/executor/s3store"
)

// Orchestrator drives runtime creation, deletion, and listing against the
// cluster and the object store.
type Orchestrator struct {
	kube   *kube.Client
	state  *runtimestate.Accessor
	store  *s3store.Store
	pods   *podio.Adapter
	bucket string
}

func New(k *kube.Client, store *s3store.Store, bucket string) *Orchestrator {
	return &Orchestrator{
		kube:   k,
		state:  runtimestate.New(k),
		store:  store,
		pods:   podio.New(k.Clientset, k.RestConfig, k.Namespace),
		bucket: bucket,
	}
}
