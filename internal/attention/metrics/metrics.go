// Package metrics provides observability for the attention engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. All methods are safe on
// a nil receiver so wiring metrics stays optional in tests.
type Metrics struct {
	// Events accepted by EmitEvent, by event type.
	EventsEmitted *prometheus.CounterVec

	// Decision outcomes by kind and producer.
	DecisionOutcome *prometheus.CounterVec

	// Per-policy evaluator latency by policy type.
	EvaluatorLatency *prometheus.HistogramVec

	// Evaluator failures recovered into the default decision, by policy type.
	EvaluationErrors *prometheus.CounterVec

	// Full EmitEvent latency including both ledger writes.
	EmitLatency prometheus.Histogram

	// Digest generation latency.
	DigestLatency prometheus.Histogram
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwatch_events_emitted_total",
			Help: "Total attention events accepted for evaluation",
		}, []string{"event_type"}),

		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwatch_decision_outcomes_total",
			Help: "Total attention decisions by kind and producer",
		}, []string{"kind", "produced_by"}),

		EvaluatorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callwatch_evaluator_duration_seconds",
			Help:    "Duration of individual policy evaluator runs by policy type",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}, []string{"policy_type"}),

		EvaluationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwatch_evaluation_errors_total",
			Help: "Evaluator failures recovered into the default decision",
		}, []string{"policy_type"}),

		EmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "callwatch_emit_duration_seconds",
			Help:    "Duration of full event ingestion including policy evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		DigestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "callwatch_digest_duration_seconds",
			Help:    "Duration of digest generation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
	}
}

// IncrementEmitted records an accepted event.
func (m *Metrics) IncrementEmitted(eventType string) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(eventType).Inc()
	}
}

// IncrementOutcome records a decision outcome.
func (m *Metrics) IncrementOutcome(kind, producedBy string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(kind, producedBy).Inc()
	}
}

// ObserveEvaluator records one evaluator run.
func (m *Metrics) ObserveEvaluator(policyType string, d time.Duration) {
	if m != nil {
		m.EvaluatorLatency.WithLabelValues(policyType).Observe(d.Seconds())
	}
}

// IncrementEvaluationError records an evaluator failure.
func (m *Metrics) IncrementEvaluationError(policyType string) {
	if m != nil {
		m.EvaluationErrors.WithLabelValues(policyType).Inc()
	}
}

// ObserveEmit records the total ingestion duration.
func (m *Metrics) ObserveEmit(d time.Duration) {
	if m != nil {
		m.EmitLatency.Observe(d.Seconds())
	}
}

// ObserveDigest records a digest generation duration.
func (m *Metrics) ObserveDigest(d time.Duration) {
	if m != nil {
		m.DigestLatency.Observe(d.Seconds())
	}
}
