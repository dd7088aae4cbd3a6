// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package backlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLowPriorityGateOpen_DefaultsOpen(t *testing.T) {
	r := &Runner{}
	assert.True(t, r.lowPriorityGateOpen())
}

func TestLowPriorityGateOpen_ClosedUntilDeadline(t *testing.T) {
	r := &Runner{fastForwardGateDeadline: time.Now().Add(time.Hour)}
	assert.False(t, r.lowPriorityGateOpen())
}

func TestLowPriorityGateOpen_OpensAfterDeadline(t *testing.T) {
	r := &Runner{fastForwardGateDeadline: time.Now().Add(-time.Second)}
	assert.True(t, r.lowPriorityGateOpen())
}
