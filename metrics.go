package xgate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records request attempts, retries and rate limit waits.
// A nil *Metrics records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	retries         *prometheus.CounterVec
	failures        *prometheus.CounterVec
	rateLimitWaits  prometheus.Counter
	attemptDuration *prometheus.HistogramVec
}

// NewMetrics registers the client metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xgate_client_attempts_total",
				Help: "Total request attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xgate_client_retries_total",
				Help: "Total retries scheduled by error kind",
			},
			[]string{"error_kind"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xgate_client_failures_total",
				Help: "Total requests that failed after all attempts by error kind",
			},
			[]string{"error_kind"},
		),
		rateLimitWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xgate_client_rate_limit_waits_total",
				Help: "Total waits honoring a server rate limit",
			},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xgate_client_attempt_duration_seconds",
				Help:    "Duration of single request attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

func (m *Metrics) recordAttempt(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(method, outcome).Inc()
	m.attemptDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) recordRetry(kind ErrorKind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(kind.String()).Inc()
	if kind == ErrKindRateLimited {
		m.rateLimitWaits.Inc()
	}
}

func (m *Metrics) recordFailure(kind ErrorKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind.String()).Inc()
}
