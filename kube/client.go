// Package kube constructs the in-cluster Kubernetes client shared by every
// component that reads or mutates runtime state.
package kube

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Client bundles the typed clientset with the namespace every call in this
// module operates against.
type Client struct {
	Clientset kubernetes.Interface
	Namespace string
	RestConfig *rest.Config
}

// NewInCluster builds a Client using the service account token and CA cert
// Kubernetes mounts into every pod.
func NewInCluster(namespace string) (*Client, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-cluster config: %s", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %s", err)
	}

	return &Client{
		Clientset:  clientset,
		Namespace:  namespace,
		RestConfig: config,
	}, nil
}

// New wraps an already-constructed clientset and config, primarily for tests
// where a fake clientset is substituted.
func New(clientset kubernetes.Interface, config *rest.Config, namespace string) *Client {
	return &Client{Clientset: clientset, Namespace: namespace, RestConfig: config}
}
