// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package authmw

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken_ExtractsFromHeader(t *testing.T) {
	assert.Equal(t, "abc123", bearerToken("Bearer abc123"))
}

func TestBearerToken_RejectsOtherSchemes(t *testing.T) {
	assert.Equal(t, "", bearerToken("Basic abc123"))
	assert.Equal(t, "", bearerToken(""))
}

func TestHasAnyRole(t *testing.T) {
	assert.True(t, hasAnyRole([]string{"user"}, []string{RoleUser, RoleSystem}))
	assert.True(t, hasAnyRole([]string{"user", "system"}, []string{RoleSystem}))
	assert.False(t, hasAnyRole([]string{"other"}, []string{RoleUser, RoleSystem}))
	assert.False(t, hasAnyRole(nil, []string{RoleUser}))
}
