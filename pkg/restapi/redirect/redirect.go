// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package redirect implements spec §4.8's replacement-redirect rule: a read
// against a scan whose manifest has replaced_by_scan_id set is redirected to
// the same endpoint for the new scan id, preserving the rest of the URL
// (query string and trailing path segments), unless the caller passes
// no_redirect=true. spec.md scenario S6 pins the status code to 302.
package redirect

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ToReplacement rewrites c's current request path, substituting the old
// scan id for newScanID, and issues a 302 (spec.md scenario S6). Returns
// false (does nothing) if the caller passed no_redirect=true.
func ToReplacement(c *gin.Context, oldScanID, newScanID string) bool {
	if c.Query("no_redirect") == "true" {
		return false
	}

	path := c.Request.URL.Path
	newPath := strings.Replace(path, oldScanID, newScanID, 1)

	u := *c.Request.URL
	u.Path = newPath

	c.Redirect(http.StatusFound, u.String())
	return true
}
