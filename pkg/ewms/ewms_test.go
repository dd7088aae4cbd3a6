// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package ewms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDeactivatedType_PendingSentinelShortCircuits(t *testing.T) {
	c := New(DefaultConfig("http://example.invalid"), "tok")
	got, err := c.GetDeactivatedType(context.Background(), pendingEWMSWorkflowSentinel)
	assert.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestGetDeactivatedType_UnsetShortCircuits(t *testing.T) {
	c := New(DefaultConfig("http://example.invalid"), "tok")
	got, err := c.GetDeactivatedType(context.Background(), "")
	assert.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestMergeWorkforceStatuses_SumsAcrossTaskforces(t *testing.T) {
	in := []map[string]map[string]int{
		{"RUNNING": {"RUNNING": 3, "DONE": 1}},
		{"RUNNING": {"RUNNING": 2}, "QUEUED": {"PENDING": 5}},
	}
	out := mergeWorkforceStatuses(in)
	assert.Equal(t, 5, out.Counts["RUNNING"]["RUNNING"])
	assert.Equal(t, 1, out.Counts["RUNNING"]["DONE"])
	assert.Equal(t, 5, out.Counts["QUEUED"]["PENDING"])
	assert.Equal(t, 5, out.NRunning)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 0)
	assert.False(t, cb.IsOpen("t"))
	cb.RecordFailure("t")
	assert.False(t, cb.IsOpen("t"))
	cb.RecordFailure("t")
	assert.True(t, cb.IsOpen("t"))
}

func TestCircuitBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(2, 0)
	cb.RecordFailure("t")
	cb.RecordSuccess("t")
	cb.RecordFailure("t")
	assert.False(t, cb.IsOpen("t"))
}
