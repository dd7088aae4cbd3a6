// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package scanid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	var prev string
	for i := 0; i < 1000; i++ {
		id := New()
		assert.False(t, seen[id], "scan id collided: %s", id)
		seen[id] = true
		assert.Len(t, id, 28)
		if prev != "" {
			assert.True(t, prev <= id, "ids must sort chronologically: %s then %s", prev, id)
		}
		prev = id
	}
}

func TestLess(t *testing.T) {
	a, b := New(), New()
	assert.True(t, Less(a, b) || a == b)
}
