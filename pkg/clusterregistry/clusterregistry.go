// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package clusterregistry holds the process-wide KNOWN_CLUSTERS table named
// in spec §6: a static map seeded at startup describing every back-end
// compute pool an admission request is allowed to target. Grounded on the
// teacher's clientsets.MultiClusterConfig (Lens/modules/core/pkg/clientsets),
// which plays the analogous role of a named-cluster-to-location map, but
// SkyDriver's registry is read-only after startup (no live secret reload)
// since cluster membership here is an admission-time validation list, not a
// live credential set.
package clusterregistry

import (
	"fmt"
	"sort"
	"sync"
)

// Orchestrator names the back-end that actually runs workers for a cluster.
type Orchestrator string

const (
	OrchestratorCondor Orchestrator = "condor"
	OrchestratorK8s    Orchestrator = "k8s"
)

// Location is the orchestrator-specific addressing for a cluster. For condor
// clusters, Collector/Schedd are set; for k8s clusters, Host/Namespace.
type Location struct {
	Collector string
	Schedd    string
	Host      string
	Namespace string
}

// Cluster describes one entry of KNOWN_CLUSTERS.
type Cluster struct {
	Name                     string
	Orchestrator             Orchestrator
	Location                 Location
	MaxClientsDuringDebugMode int // 0 means unset/no cap
}

// Registry is the process-wide known-cluster table.
type Registry struct {
	mu       sync.RWMutex
	clusters map[string]Cluster
}

// New builds an empty registry. Use Seed to populate it at startup.
func New() *Registry {
	return &Registry{clusters: make(map[string]Cluster)}
}

// Seed replaces the registry contents, the startup-time load named in spec §6.
func (r *Registry) Seed(clusters []Cluster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[string]Cluster, len(clusters))
	for _, c := range clusters {
		m[c.Name] = c
	}
	r.clusters = m
}

// Lookup returns the cluster descriptor for name, or an error if name is not
// a member of KNOWN_CLUSTERS — the admission-time 400 named in spec §4.1.
func (r *Registry) Lookup(name string) (Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clusters[name]
	if !ok {
		return Cluster{}, fmt.Errorf("unknown cluster %q", name)
	}
	return c, nil
}

// Contains reports whether name is a known cluster.
func (r *Registry) Contains(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns all known cluster names, sorted for stable output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clusters))
	for n := range r.clusters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
