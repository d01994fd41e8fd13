// Package metrics defines the Prometheus metrics exported by blobd.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobd_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobd_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobd_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobd_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Blob operation metrics.
var (
	// BlobOperationsTotal counts create/get operations by outcome. Status is
	// "success" or the error class (invalid, duplicate, not_found, storage,
	// metadata).
	BlobOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobd_blob_operations_total",
			Help: "Blob operations by type and outcome",
		},
		[]string{"operation", "status"},
	)

	// BlobBytesTotal counts raw payload bytes stored ("in") and served ("out").
	BlobBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobd_blob_bytes_total",
			Help: "Raw payload bytes by direction",
		},
		[]string{"direction"},
	)

	StorageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobd_storage_duration_seconds",
			Help:    "Storage backend call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// RateLimitedTotal counts requests rejected with 429.
	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobd_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			BlobOperationsTotal,
			BlobBytesTotal,
			StorageDuration,
			RateLimitedTotal,
		)
		// Initialize the operation series so they appear in /metrics output
		// before the first request.
		BlobOperationsTotal.WithLabelValues("create", "success")
		BlobOperationsTotal.WithLabelValues("get", "success")
	})
}

const blobsPrefix = "/api/v1/blobs"

// NormalizePath maps request paths to route templates for use as metric
// labels, so individual blob ids never become label values.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/metrics", "/openapi.json", "/openapi.yaml":
		return path
	case "/docs", "/docs/":
		return "/docs"
	case blobsPrefix, blobsPrefix + "/":
		return blobsPrefix
	case "/", "":
		return "/"
	}

	// Starts with /docs (Stoplight Elements assets).
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}
	if strings.HasPrefix(path, blobsPrefix+"/") {
		return blobsPrefix + "/{id}"
	}
	return "/other"
}
