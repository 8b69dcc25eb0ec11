package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratecon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratecon_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	throttleHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratecon_throttle_hits_total",
			Help: "Uploads rejected by the per-user throttle",
		},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratecon_upload_size_bytes",
			Help:    "Size of uploaded documents in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 5 * 1024 * 1024, 20 * 1024 * 1024},
		},
	)

	jobsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratecon_jobs_queued_total",
			Help: "Documents accepted into the per-user queues",
		},
	)
)
