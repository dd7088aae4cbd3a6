// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoop_TicksAndStops(t *testing.T) {
	var count int32
	l := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	l.Start()
	time.Sleep(55 * time.Millisecond)
	l.Stop()

	got := atomic.LoadInt32(&count)
	assert.GreaterOrEqual(t, got, int32(3))
}

func TestLoop_SurvivesPanicInTick(t *testing.T) {
	var count int32
	l := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			panic("boom")
		}
		return nil
	})
	l.Start()
	time.Sleep(35 * time.Millisecond)
	l.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(2))
}

func TestHeartbeat_CountsEveryTick(t *testing.T) {
	h := NewHeartbeat("test", 3)
	for i := 0; i < 7; i++ {
		h.Tick()
	}
	assert.Equal(t, 7, h.counter)
}
