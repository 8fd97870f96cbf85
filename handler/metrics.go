package handler

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// ///////////////////////////////////////////////
// Metrics
// ///////////////////////////////////////////////

const metricsNamespace = "sigdispatch"

// Drop reasons recorded on [Metrics.Dropped].
const (
	dropFull    = "full"
	dropClosed  = "closed"
	dropUnbound = "unbound"
)

// Metrics holds the dispatcher's prometheus collectors. Every vector is
// labelled by category.
type Metrics struct {
	// Events counts registration events read by the routing loop.
	Events *prometheus.CounterVec
	// Routed counts events enqueued to a worker.
	Routed *prometheus.CounterVec
	// Dropped counts events discarded by the routing loop, by reason.
	Dropped *prometheus.CounterVec
	// Invocations counts callback invocations, inline and on workers.
	Invocations *prometheus.CounterVec
	// Debounced counts queued items discarded as stale by a worker.
	Debounced *prometheus.CounterVec
	// Duration observes callback run time in seconds.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered but fully usable. When reg already holds an
// identical collector, the existing one is reused, so several handlers can
// share one registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Events: registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Registration events read by the routing loop.",
		}, []string{"category"})),
		Routed: registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "routed_total",
			Help:      "Events enqueued to a category worker.",
		}, []string{"category"})),
		Dropped: registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_total",
			Help:      "Events dropped by the routing loop.",
		}, []string{"category", "reason"})),
		Invocations: registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invocations_total",
			Help:      "Callback invocations.",
		}, []string{"category"})),
		Debounced: registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "debounced_total",
			Help:      "Queued events discarded because a later invocation already finished.",
		}, []string{"category"})),
		Duration: registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "callback_duration_seconds",
			Help:      "Callback run time.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30},
		}, []string{"category"})),
	}
}

// Collectors returns every collector, for callers that register them
// themselves.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Events, m.Routed, m.Dropped, m.Invocations, m.Debounced, m.Duration}
}

// registerCollector registers c with reg, returning the already-registered
// collector when an identical one exists. Other registration errors leave c
// unregistered.
func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
