// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package redirect

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestToReplacement_RewritesPathAndPreservesQuery(t *testing.T) {
	c, w := newTestContext("/scan/old-id/manifest?include_deleted=true")
	redirected := ToReplacement(c, "old-id", "new-id")

	assert.True(t, redirected)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/scan/new-id/manifest?include_deleted=true", w.Header().Get("Location"))
}

func TestToReplacement_NoRedirectFlagSkips(t *testing.T) {
	c, w := newTestContext("/scan/old-id/manifest?no_redirect=true")
	redirected := ToReplacement(c, "old-id", "new-id")

	assert.False(t, redirected)
	assert.Equal(t, 200, w.Code) // recorder defaults to 200 when nothing was written
}
