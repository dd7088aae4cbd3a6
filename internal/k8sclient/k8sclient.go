// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package k8sclient bootstraps the Kubernetes clientset SkyDriver uses to
// create and inspect scanner jobs. The bootstrap itself (ctrl.GetConfig
// plus kubernetes.NewForConfig, both returning errors rather than exiting)
// is grounded on the teacher's
// clientsets.initK8SClientSetByConfig; SkyDriver needs only the typed
// Clientset (Job/Pod/Secret access), not the dynamic or controller-runtime
// clients the teacher's multi-cluster variant also carries.
package k8sclient

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
)

// Client wraps the typed Kubernetes clientset plus the namespace SkyDriver
// operates in, so callers never thread a namespace string separately.
// Clientset is the kubernetes.Interface rather than the concrete
// *kubernetes.Clientset so tests can substitute client-go's fake clientset.
type Client struct {
	Clientset kubernetes.Interface
	Namespace string
}

// New builds a Client from the in-cluster or kubeconfig-resolved rest.Config,
// the same resolution order the teacher uses, via ctrl.GetConfig.
func New(namespace string) (*Client, error) {
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve kubernetes config: %w", err)
	}
	return NewFromConfig(cfg, namespace)
}

// NewFromConfig builds a Client from an explicit rest.Config, used by tests
// (envtest) that already have a config handle.
func NewFromConfig(cfg *rest.Config, namespace string) (*Client, error) {
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clientset: %w", err)
	}
	return &Client{Clientset: cs, Namespace: namespace}, nil
}
