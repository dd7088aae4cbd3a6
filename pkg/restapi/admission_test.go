// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package restapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventPayload_AcceptsObjectForm(t *testing.T) {
	m, hash, err := parseEventPayload(json.RawMessage(`{"b":2,"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1), m["a"])
	assert.NotEmpty(t, hash)
}

func TestParseEventPayload_AcceptsStringForm(t *testing.T) {
	mFromString, hashFromString, err := parseEventPayload(json.RawMessage(`"{\"a\":1,\"b\":2}"`))
	require.NoError(t, err)
	mFromObject, hashFromObject, err := parseEventPayload(json.RawMessage(`{"b":2,"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, mFromObject, mFromString)
	assert.Equal(t, hashFromObject, hashFromString, "canonicalisation must be independent of key order")
}

func TestParseEventPayload_RejectsEmpty(t *testing.T) {
	_, _, err := parseEventPayload(nil)
	assert.Error(t, err)
}

func TestParseEventPayload_RejectsMalformedString(t *testing.T) {
	_, _, err := parseEventPayload(json.RawMessage(`"not json"`))
	assert.Error(t, err)
}

func TestCanonicalJSON_KeyOrderIndependent(t *testing.T) {
	a, err := canonicalJSON(map[string]interface{}{"z": 1, "a": 2})
	require.NoError(t, err)
	b, err := canonicalJSON(map[string]interface{}{"a": 2, "z": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseClusterField_MapForm(t *testing.T) {
	clusters, err := parseClusterField(json.RawMessage(`{"cluster-a": 3, "cluster-b": 5}`))
	require.NoError(t, err)
	assert.Equal(t, 3, clusters["cluster-a"])
	assert.Equal(t, 5, clusters["cluster-b"])
}

func TestParseClusterField_ListFormSumsDuplicates(t *testing.T) {
	clusters, err := parseClusterField(json.RawMessage(`[["cluster-a", 3], ["cluster-a", 2]]`))
	require.NoError(t, err)
	assert.Equal(t, 5, clusters["cluster-a"])
}

func TestParseClusterField_RejectsEmpty(t *testing.T) {
	_, err := parseClusterField(nil)
	assert.Error(t, err)
}

func TestParseRealOrSimulated(t *testing.T) {
	real, err := parseRealOrSimulated("real")
	require.NoError(t, err)
	assert.True(t, real)

	sim, err := parseRealOrSimulated("")
	require.NoError(t, err)
	assert.False(t, sim)

	_, err = parseRealOrSimulated("bogus")
	assert.Error(t, err)
}
