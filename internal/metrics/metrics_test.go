package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Outcome("image", "dall-e-3", "success")
	m.Outcome("image", "dall-e-3", "success")
	m.Charged("image", 15)
	m.Refund("applied")
	m.Invoke("openai", "success", 2*time.Second)
	m.PendingRefunds(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("image", "dall-e-3", "success")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.creditsCharged.WithLabelValues("image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refunds.WithLabelValues("applied")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.pendingRefunds))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Outcome("chat", "gpt-4o", "failure")
		m.Refund("queued")
		m.Charged("chat", 3)
		m.Invoke("openai", "failure", time.Second)
		m.PendingRefunds(1)
	})
}
