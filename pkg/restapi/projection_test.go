// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package restapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
)

func TestProjectManifest_NoKeysReturnsFullView(t *testing.T) {
	m := &docstore.Manifest{ScanID: "abc", Priority: 7, Complete: true}
	got := projectManifest(m, nil, nil)
	view, ok := got.(manifestView)
	require.True(t, ok)
	assert.Equal(t, "abc", view.ScanID)
	assert.Equal(t, 7, view.Priority)
	assert.True(t, view.Complete)
}

func TestProjectManifest_RestrictsToRequestedKeys(t *testing.T) {
	m := &docstore.Manifest{ScanID: "abc", Priority: 7, Complete: true}
	got := projectManifest(m, nil, []string{"priority"})
	fields, ok := got.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "abc", fields["scan_id"], "scan_id is always included")
	assert.Equal(t, 7, fields["priority"])
	_, hasComplete := fields["complete"]
	assert.False(t, hasComplete)
}

func TestProjectManifest_UnknownKeyIsIgnored(t *testing.T) {
	m := &docstore.Manifest{ScanID: "abc"}
	got := projectManifest(m, nil, []string{"not_a_real_field"})
	fields := got.(map[string]interface{})
	assert.Len(t, fields, 1) // only scan_id
}

func TestProjectManifest_CarriesResultWhenProvided(t *testing.T) {
	m := &docstore.Manifest{ScanID: "abc"}
	r := &docstore.Result{ScanID: "abc", IsFinal: true}
	got := projectManifest(m, r, nil).(manifestView)
	assert.Equal(t, r, got.Result)
}
