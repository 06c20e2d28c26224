package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstash_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstash_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docstash_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// Authentication metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstash_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"status"},
	)

	RegisterAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstash_register_attempts_total",
			Help: "Total number of registration attempts",
		},
		[]string{"status"},
	)

	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstash_account_lockouts_total",
			Help: "Total number of account lockouts triggered",
		},
	)

	// Upload metrics
	DocumentsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstash_documents_uploaded_total",
			Help: "Total number of documents uploaded",
		},
		[]string{"mode"}, // single, multiple, chunked
	)

	ChunksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstash_upload_chunks_received_total",
			Help: "Total number of upload chunks received",
		},
	)

	UploadSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docstash_upload_sessions_active",
			Help: "Current number of active chunked upload sessions",
		},
	)

	UploadSessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstash_upload_sessions_swept_total",
			Help: "Total number of expired upload sessions reclaimed",
		},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := httpStatusToString(status)
	HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

func httpStatusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	}
	return "unknown"
}
