package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	// HTTPRequestsTotal tracks served requests by method, route path and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status code",
		},
		[]string{"method", "path", "code"},
	)

	// HTTPRequestDuration tracks request latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Domain Metrics
var (
	// NotificationsTotal tracks notifications by kind and delivery status (stored, emailed, failed)
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total notifications by kind and status",
		},
		[]string{"kind", "status"},
	)

	// ReportsGeneratedTotal tracks PDF report generations by status (success, error)
	ReportsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Total assessment reports generated by status",
		},
		[]string{"status"},
	)

	// FilesUploadedBytesTotal tracks uploaded bytes by storage backend
	FilesUploadedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "files_uploaded_bytes_total",
			Help: "Total bytes uploaded by storage backend",
		},
		[]string{"backend"},
	)

	// EmailsSentTotal tracks outgoing e-mails by backend and status (sent, error, rejected)
	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total e-mails sent by backend and status",
		},
		[]string{"backend", "status"},
	)

	// RateLimitedTotal tracks requests rejected by the rate limiter, by endpoint
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

// Status label values
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusStored   = "stored"
	StatusEmailed  = "emailed"
	StatusRejected = "rejected"
)
