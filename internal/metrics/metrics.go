// Package metrics holds the prometheus collectors for metered calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexora"

// Metrics is safe to use as a nil pointer, in which case every method is a no-op.
type Metrics struct {
	outcomes       *prometheus.CounterVec
	refunds        *prometheus.CounterVec
	creditsCharged *prometheus.CounterVec
	invokeDuration *prometheus.HistogramVec
	pendingRefunds prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metered_calls_total",
			Help:      "Metered calls by kind, model and outcome.",
		}, []string{"kind", "model", "outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by result (applied, queued, lost, reconciled).",
		}, []string{"result"}),
		creditsCharged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_charged_total",
			Help:      "Credits kept after successful generations.",
		}, []string{"kind"}),
		invokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_invoke_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider", "outcome"}),
		pendingRefunds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_refunds",
			Help:      "Unresolved refunds seen by the last reconciler pass.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.refunds, m.creditsCharged, m.invokeDuration, m.pendingRefunds)
	}
	return m
}

func (m *Metrics) Outcome(kind, model, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind, model, outcome).Inc()
}

func (m *Metrics) Refund(result string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(result).Inc()
}

func (m *Metrics) Charged(kind string, credits int64) {
	if m == nil {
		return
	}
	m.creditsCharged.WithLabelValues(kind).Add(float64(credits))
}

func (m *Metrics) Invoke(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.invokeDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

func (m *Metrics) PendingRefunds(n int) {
	if m == nil {
		return
	}
	m.pendingRefunds.Set(float64(n))
}
