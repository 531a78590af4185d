// Package metrics exposes Prometheus metrics for the sync pipeline.
//
// Every recording method is safe to call on a nil *Metrics, so components
// accept metrics as an optional dependency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cfhub"

// Result label values shared by several counters.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
	ResultSkipped  = "skipped"
	ResultHit      = "hit"
	ResultMiss     = "miss"
)

// Metrics holds every collector of the service.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	breakerState     prometheus.Gauge

	syncs         *prometheus.CounterVec
	batchRuns     *prometheus.CounterVec
	batchStudents *prometheus.CounterVec
	batchDuration prometheus.Histogram
	notifications *prometheus.CounterVec
	profileCache  *prometheus.CounterVec
}

// Option configures Metrics.
type Option func(*options)

type options struct {
	runtimeMetrics bool
}

// WithRuntimeMetrics adds the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(o *options) { o.runtimeMetrics = true }
}

// New creates the collectors on a private registry.
func New(opts ...Option) *Metrics {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	registry := prometheus.NewRegistry()
	if o.runtimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auto := promauto.With(registry)
	m := &Metrics{registry: registry}

	m.upstreamRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Codeforces API requests by endpoint and result",
	}, []string{"endpoint", "result"})

	m.upstreamDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Codeforces API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	m.breakerState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Codeforces circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	m.syncs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_total",
		Help:      "Single-student syncs by result",
	}, []string{"result"})

	m.batchRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_runs_total",
		Help:      "Batch runs by result",
	}, []string{"result"})

	m.batchStudents = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_students_total",
		Help:      "Students processed by batch runs, by outcome",
	}, []string{"outcome"})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of batch runs",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification attempts by kind and result",
	}, []string{"kind", "result"})

	m.profileCache = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profile_cache_total",
		Help:      "Profile statistics cache lookups by result",
	}, []string{"result"})

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveUpstream records one Codeforces request.
func (m *Metrics) ObserveUpstream(endpoint, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(endpoint, result).Inc()
	m.upstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetBreakerState records the circuit breaker state.
func (m *Metrics) SetBreakerState(state float64) {
	if m == nil {
		return
	}
	m.breakerState.Set(state)
}

// IncSync records a single-student sync.
func (m *Metrics) IncSync(result string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(result).Inc()
}

// BatchCounts mirrors the counters of a finished batch run.
type BatchCounts struct {
	Succeeded, Failed, Inactive, Notified, NotifyFailed int
}

// ObserveBatch records a finished batch run.
func (m *Metrics) ObserveBatch(result string, c BatchCounts, d time.Duration) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(result).Inc()
	if result == ResultSkipped {
		return
	}
	m.batchStudents.WithLabelValues("synced").Add(float64(c.Succeeded))
	m.batchStudents.WithLabelValues("failed").Add(float64(c.Failed))
	m.batchStudents.WithLabelValues("inactive").Add(float64(c.Inactive))
	m.batchStudents.WithLabelValues("notified").Add(float64(c.Notified))
	m.batchStudents.WithLabelValues("notify_failed").Add(float64(c.NotifyFailed))
	m.batchDuration.Observe(d.Seconds())
}

// IncNotification records a notification attempt.
func (m *Metrics) IncNotification(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// IncProfileCache records a profile cache lookup.
func (m *Metrics) IncProfileCache(result string) {
	if m == nil {
		return
	}
	m.profileCache.WithLabelValues(result).Inc()
}
