// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for resolutions.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/chatconn/internal/domain"
)

const namespace = "chatconn"

// Metrics records resolution counters. A nil *Metrics records nothing.
type Metrics struct {
	resolutions *prometheus.CounterVec
	refusals    *prometheus.CounterVec
	cache       *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    prometheus.Histogram
	changes     *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Successful resolutions by target source.",
		}, []string{"source"}),
		refusals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "refusals_total",
			Help:      "Refused resolutions by reason.",
		}, []string{"reason"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Resolution cache lookups by result.",
		}, []string{"result"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "errors_total",
			Help:      "Operational failures by stage.",
		}, []string{"stage"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "duration_seconds",
			Help:      "Time spent resolving a target.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "changes_total",
			Help:      "Connection changes by kind.",
		}, []string{"kind"}),
	}
}

// ObserveOutcome records a finished resolution.
func (m *Metrics) ObserveOutcome(o domain.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	if o.OK() {
		m.resolutions.WithLabelValues(string(o.Target.Source)).Inc()
		return
	}
	m.refusals.WithLabelValues(string(o.Reason)).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// Error records an operational failure at stage.
func (m *Metrics) Error(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stage).Inc()
}

// Change records a connect or disconnect.
func (m *Metrics) Change(kind string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(kind).Inc()
}

// Handler serves the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
