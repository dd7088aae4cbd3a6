// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package metrics instruments the REST surface with Prometheus counters and
// histograms, grounded on the teacher's gin metrics middleware
// (Lens/modules/core/pkg/router/middleware/metrics.go): one counter vector
// for total requests, one for error responses, a histogram for latency, and
// a gauge for in-flight requests. The two counters are keyed by
// method/path/status, the histogram by method/path, and the gauge by method.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skydriver_http_requests_total",
			Help: "Total number of SkyDriver REST API requests.",
		},
		[]string{"method", "path", "status"},
	)

	requestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skydriver_http_request_errors_total",
			Help: "Total number of SkyDriver REST API requests that returned a 4xx or 5xx status.",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skydriver_http_request_duration_seconds",
			Help:    "SkyDriver REST API request duration in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	requestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skydriver_http_requests_in_flight",
			Help: "Number of SkyDriver REST API requests currently being processed.",
		},
		[]string{"method"},
	)

	// ScansAdmitted counts admissions by the path they took, so operators
	// can tell the direct-start path apart from the backlog path. A
	// high-priority scan that falls back to the backlog counts as "backlog".
	ScansAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skydriver_scans_admitted_total",
			Help: "Total number of scans admitted, by admission path.",
		},
		[]string{"path"}, // "direct" or "backlog"
	)
)

// Handle returns a gin middleware recording per-request metrics. Skips
// /metrics itself to avoid counting scrapes as API traffic.
func Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		method := c.Request.Method

		requestsInFlight.WithLabelValues(method).Inc()
		defer requestsInFlight.WithLabelValues(method).Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := strconv.Itoa(c.Writer.Status())

		requestsTotal.WithLabelValues(method, path, status).Inc()
		if c.Writer.Status() >= 400 {
			requestErrorsTotal.WithLabelValues(method, path, status).Inc()
		}
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
