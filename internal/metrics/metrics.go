// Package metrics exposes Prometheus collectors for face verification.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_verifications_total",
			Help: "Total number of face verifications by outcome",
		},
		[]string{"outcome"}, // "match", "no_match", or an error kind
	)

	VerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faceverify_verification_duration_seconds",
			Help:    "End-to-end duration of face verifications",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faceverify_descriptor_cache_hits_total",
			Help: "Total number of reference descriptor cache hits",
		},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_descriptor_cache_misses_total",
			Help: "Total number of reference descriptor cache misses by reason",
		},
		[]string{"reason"}, // "absent", "expired", "fingerprint"
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faceverify_descriptor_cache_evictions_total",
			Help: "Total number of LRU evictions from the descriptor cache",
		},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faceverify_descriptor_cache_entries",
			Help: "Current number of cached reference descriptors",
		},
	)

	ModelLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_model_loads_total",
			Help: "Total number of model load attempts by result",
		},
		[]string{"result"},
	)

	ModelLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faceverify_model_load_duration_seconds",
			Help:    "Duration of model loading",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	DescriptorComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_descriptor_computations_total",
			Help: "Total number of descriptor computations by side and result",
		},
		[]string{"side", "result"},
	)

	ImageDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_image_download_attempts_total",
			Help: "Total number of reference image download attempts by result",
		},
		[]string{"result"}, // "ok", "timeout", "http_error", "error"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faceverify_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceverify_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)

// RecordVerification records a finished verification.
func RecordVerification(outcome string, duration time.Duration) {
	VerificationsTotal.WithLabelValues(outcome).Inc()
	VerificationDuration.Observe(duration.Seconds())
}

// RecordModelLoad records one model load attempt.
func RecordModelLoad(duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ModelLoads.WithLabelValues(result).Inc()
	ModelLoadDuration.Observe(duration.Seconds())
}

// RecordDescriptor records a descriptor computation for side ("reference" or "input").
func RecordDescriptor(side, result string) {
	DescriptorComputations.WithLabelValues(side, result).Inc()
}

// RecordDownload records a single HTTP download attempt.
func RecordDownload(result string) {
	ImageDownloads.WithLabelValues(result).Inc()
}
