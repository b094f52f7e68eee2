// Package metrics provides Prometheus metrics for the staffing coordinator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing, so tests can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	requestsSent   prometheus.Counter
	notifyFailures prometheus.Counter
	responses      *prometheus.CounterVec
	remindersSent  prometheus.Counter
	timeouts       prometheus.Counter
	sweepErrors    prometheus.Counter
}

// New creates a Metrics instance with its own registry (no default Go
// collectors).
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chairfill",
			Name:      "requests_sent_total",
			Help:      "Staffing requests dispatched to musicians.",
		}),
		notifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chairfill",
			Name:      "notify_failures_total",
			Help:      "Notification sends that failed and were left for retry.",
		}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chairfill",
			Name:      "responses_total",
			Help:      "Musician responses applied, by decision.",
		}, []string{"decision"}),
		remindersSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chairfill",
			Name:      "reminders_sent_total",
			Help:      "Reminders emitted by the sweep.",
		}),
		timeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chairfill",
			Name:      "timeouts_total",
			Help:      "Requests transitioned to timeout by the sweep.",
		}),
		sweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chairfill",
			Name:      "sweep_errors_total",
			Help:      "Errors encountered during sweep runs.",
		}),
	}
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RequestSent() {
	if m != nil {
		m.requestsSent.Inc()
	}
}

func (m *Metrics) NotifyFailed() {
	if m != nil {
		m.notifyFailures.Inc()
	}
}

func (m *Metrics) ResponseApplied(decision string) {
	if m != nil {
		m.responses.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) ReminderSent() {
	if m != nil {
		m.remindersSent.Inc()
	}
}

func (m *Metrics) TimeoutEnforced() {
	if m != nil {
		m.timeouts.Inc()
	}
}

func (m *Metrics) SweepError() {
	if m != nil {
		m.sweepErrors.Inc()
	}
}
