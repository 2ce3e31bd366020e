package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmind_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmind_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	MessagesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmind_messages_submitted_total",
			Help: "Total user messages accepted for processing",
		},
	)

	JobsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmind_jobs_settled_total",
			Help: "Total completion jobs settled by the worker pool",
		},
		[]string{"outcome"}, // "completed", "duplicate", "retried", "dead_lettered"
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatmind_job_duration_seconds",
			Help:    "Completion job processing duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatmind_queue_depth",
			Help: "Jobs currently sitting in each transport stage",
		},
		[]string{"stage"}, // "pending", "processing", "delayed", "dead"
	)

	// Limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmind_rate_limit_hits_total",
			Help: "Total requests rejected by the auth rate limiter",
		},
		[]string{"endpoint"},
	)

	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmind_quota_rejections_total",
			Help: "Total messages rejected by the daily usage quota",
		},
	)

	// Realtime metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatmind_ws_connections",
			Help: "Currently connected websocket clients",
		},
	)
)
