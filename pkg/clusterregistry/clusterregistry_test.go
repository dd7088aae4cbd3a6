// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package clusterregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAndLookup(t *testing.T) {
	r := New()
	r.Seed([]Cluster{
		{Name: "condor-npx", Orchestrator: OrchestratorCondor, Location: Location{Collector: "condor.icecube.wisc.edu", Schedd: "sched1"}},
		{Name: "k8s-cloud", Orchestrator: OrchestratorK8s, Location: Location{Host: "https://cloud", Namespace: "skydriver"}, MaxClientsDuringDebugMode: 5},
	})

	c, err := r.Lookup("condor-npx")
	require.NoError(t, err)
	assert.Equal(t, OrchestratorCondor, c.Orchestrator)

	assert.True(t, r.Contains("k8s-cloud"))
	assert.False(t, r.Contains("does-not-exist"))

	_, err = r.Lookup("does-not-exist")
	assert.Error(t, err)
}

func TestSeedReplacesPreviousContents(t *testing.T) {
	r := New()
	r.Seed([]Cluster{{Name: "a"}})
	require.True(t, r.Contains("a"))
	r.Seed([]Cluster{{Name: "b"}})
	assert.False(t, r.Contains("a"))
	assert.True(t, r.Contains("b"))
}
