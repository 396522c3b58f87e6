// Package metrics registers the engine's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	DecisionLatency     prometheus.Histogram
	EscalationsTotal    *prometheus.CounterVec
	LedgerAppendErrors  prometheus.Counter
	ChainVerifyFailures prometheus.Counter
	NotifyFailures      prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return newWith(prometheus.DefaultRegisterer)
}

// NewForTest registers metrics on a private registry so parallel tests don't
// collide on duplicate registration.
func NewForTest() *Metrics {
	return newWith(prometheus.NewRegistry())
}

func newWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_decisions_total",
			Help: "Authorization decisions by outcome.",
		}, []string{"decision"}),
		DecisionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "aegis_decision_duration_seconds",
			Help: "End-to-end decision latency. Budget is 100ms at p99.",
			// Buckets concentrated below the latency budget.
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		EscalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_escalations_total",
			Help: "Break-glass escalations created, by trigger reason.",
		}, []string{"reason"}),
		LedgerAppendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ledger_append_errors_total",
			Help: "Audit ledger append failures. Each one fails a decision closed.",
		}),
		ChainVerifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "aegis_chain_verify_failures_total",
			Help: "Audit chain verifications that detected tampering.",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "aegis_notify_failures_total",
			Help: "Advocate notification delivery failures (retried async).",
		}),
	}
}
