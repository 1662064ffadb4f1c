// Package metrics exposes Prometheus instrumentation for journal recovery and
// the inspection API.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

var (
	roundsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventrecover_rounds_applied_total",
		Help: "Total rounds applied to application state.",
	})

	eventsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventrecover_events_replayed_total",
		Help: "Total events pre-handled and applied.",
	})

	journalFilesOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventrecover_journal_files_opened_total",
		Help: "Total journal files opened for reading.",
	})

	integrityFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventrecover_integrity_failures_total",
		Help: "Total journal read failures by kind.",
	}, []string{"kind"})

	lastRound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventrecover_last_round",
		Help: "Number of the most recently applied round.",
	})

	roundApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventrecover_round_apply_duration_seconds",
		Help:    "Time to pre-handle and apply one round.",
		Buckets: prometheus.DefBuckets,
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventrecover_http_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventrecover_http_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// Handler returns a Gin handler that serves Prometheus metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordRoundApplied records one applied round of n events.
func RecordRoundApplied(round uint64, events int, took time.Duration) {
	roundsAppliedTotal.Inc()
	eventsReplayedTotal.Add(float64(events))
	lastRound.Set(float64(round))
	roundApplyDuration.Observe(took.Seconds())
}

// RecordFileOpened records a journal file being opened. It has the signature
// of an eventstream file observer.
func RecordFileOpened(string) {
	journalFilesOpenedTotal.Inc()
}

// RecordIntegrityFailure records a failed journal read, labelled by the
// eventstream error it wraps.
func RecordIntegrityFailure(err error) {
	integrityFailuresTotal.WithLabelValues(FailureKind(err)).Inc()
}

// FailureKind maps a journal read error to a short label.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, eventstream.ErrChainIntegrity):
		return "chain_integrity"
	case errors.Is(err, eventstream.ErrTruncatedStream):
		return "truncated_stream"
	case errors.Is(err, eventstream.ErrEmptyOrCorruptFile):
		return "empty_or_corrupt_file"
	case errors.Is(err, eventstream.ErrBoundNotFound):
		return "bound_not_found"
	case errors.Is(err, eventstream.ErrRoundNotFound):
		return "round_not_found"
	case errors.Is(err, eventstream.ErrInvalidBound):
		return "invalid_bound"
	default:
		return "other"
	}
}
