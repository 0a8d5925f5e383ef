package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veriface",
		Name:      "verifications_total",
		Help:      "Total verification runs by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veriface",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	FramesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veriface",
		Name:      "frames_extracted_total",
		Help:      "Frames produced by each frame source",
	}, []string{"source"})

	// SyntheticFrameRequests counts every request served by the synthetic
	// frame source. Anything nonzero in production is a deployment error.
	SyntheticFrameRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "veriface",
		Name:      "synthetic_frame_requests_total",
		Help:      "Requests that used the synthetic (non-production) frame source",
	})

	LivenessScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "veriface",
		Name:      "liveness_score",
		Help:      "Distribution of liveness scores",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	StoreCorruptions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "veriface",
		Name:      "store_corruptions_total",
		Help:      "Persisted embedding stores that failed to decrypt at startup",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "veriface",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})

	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "veriface",
		Name:      "active_requests",
		Help:      "Verification requests currently in flight",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veriface",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "veriface",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
