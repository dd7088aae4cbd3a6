// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package restutil holds the response/error conventions shared by every
// REST handler: handlers return (interface{}, error) and never write to
// the gin.Context themselves, matching spec §9's "result/error-variant at
// every layer" design note. The single outermost HandleErrors middleware
// performs the translation to an HTTP status, grounded on the teacher's
// router/middleware/handle-error.go (collect errors on the gin.Context,
// translate the first one, log the rest as "should not happen") — adapted
// here to real per-kind HTTP status codes instead of the teacher's
// always-200-with-embedded-code convention, since spec §7 names concrete
// statuses (400/404/409/500) as part of the contract external callers rely
// on.
package restutil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
)

// HandlerFunc is the shape every route handler implements. Returning data
// and no error renders data as the 200 body; returning an error defers
// entirely to HandleErrors.
type HandlerFunc func(c *gin.Context) (interface{}, error)

// Wrap adapts a HandlerFunc into a gin.HandlerFunc, storing the handler's
// error (if any) on the context for HandleErrors to translate, and writing
// the success body directly otherwise.
func Wrap(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := h(c)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if data == nil {
			c.Status(http.StatusOK)
			return
		}
		c.JSON(http.StatusOK, data)
	}
}

// HandleErrors is the single place an *apierrors.Error becomes an HTTP
// response. Must be registered before any route-specific middleware.
func HandleErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}

		for i := 1; i < len(c.Errors); i++ {
			logger.Errorf("rest: subsequent error #%d on %s (ignored, first error wins): %v", i, c.FullPath(), c.Errors[i].Err)
		}

		err := c.Errors[0].Err
		var apiErr *apierrors.Error
		if errors.As(err, &apiErr) {
			logger.Errorf("rest: %s %s failed [%d] %s: %v%s", c.Request.Method, c.FullPath(), apiErr.Code, apiErr.Message, apiErr.InnerError, apiErr.GetStackString())
			c.AbortWithStatusJSON(statusFor(apiErr.Code), gin.H{
				"error":       apiErr.Message,
				"reason":      reasonFor(apiErr.Code),
				"log_message": apiErr.Message,
			})
			return
		}

		logger.Errorf("rest: %s %s failed with an unwrapped error: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func statusFor(code int) int {
	switch code {
	case apierrors.CodeValidation:
		return http.StatusBadRequest
	case apierrors.CodeDataExists, apierrors.CodeConflict:
		return http.StatusConflict
	case apierrors.CodeAuthFailed:
		return http.StatusUnauthorized
	case apierrors.CodePermissionDeny:
		return http.StatusForbidden
	case apierrors.CodeNotFound:
		return http.StatusNotFound
	case apierrors.CodeServiceUnavail:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(code int) string {
	switch code {
	case apierrors.CodeValidation:
		return "validation"
	case apierrors.CodeDataExists:
		return "already exists"
	case apierrors.CodeConflict:
		return "conflict"
	case apierrors.CodeAuthFailed:
		return "auth failed"
	case apierrors.CodePermissionDeny:
		return "forbidden"
	case apierrors.CodeNotFound:
		return "not found"
	case apierrors.CodeServiceUnavail:
		return "dependency unavailable"
	default:
		return "internal"
	}
}
