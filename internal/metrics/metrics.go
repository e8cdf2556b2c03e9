// Package metrics holds the Prometheus collectors for the core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_jobs_processed_total",
			Help: "Jobs processed by type and resulting status.",
		},
		[]string{"type", "status"},
	)

	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_jobs_enqueued_total",
			Help: "Jobs enqueued by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "core_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open).",
		},
		[]string{"dependency"},
	)

	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_breaker_rejections_total",
			Help: "Calls rejected without invoking the dependency.",
		},
		[]string{"dependency"},
	)

	RateLimitDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_rate_limit_denied_total",
			Help: "Rate limit denials by action.",
		},
		[]string{"action"},
	)

	RateLimitFailOpen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "core_rate_limit_fail_open_total",
			Help: "Checks allowed because the window store failed.",
		},
	)

	RiskEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_risk_events_total",
			Help: "Risk events emitted by type and severity.",
		},
		[]string{"risk_type", "severity"},
	)

	AuditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "core_audit_dropped_total",
			Help: "Audit records that could not be persisted.",
		},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Register adds every collector to reg. Collectors work unregistered, so
// tests never need to call this.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		JobsProcessed,
		JobsEnqueued,
		BreakerState,
		BreakerRejections,
		RateLimitDenied,
		RateLimitFailOpen,
		RiskEvents,
		AuditDropped,
		httpRequestDuration,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request latency. route should be a low-cardinality
// pattern, so callers pass a resolver (chi's RoutePattern in production).
func Instrument(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)

			pattern := route(r)
			if pattern == "" {
				pattern = "unmatched"
			}
			httpRequestDuration.
				WithLabelValues(r.Method, pattern, strconv.Itoa(sw.code)).
				Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
