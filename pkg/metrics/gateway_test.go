package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayMetricsLabelsResponseCodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)
	m.Observe("phonepe", "create_payment", 200, 40*time.Millisecond)
	m.Observe("phonepe", "create_payment", 0, 10*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "estore_gateway_requests_total", "code", "200")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "estore_gateway_requests_total", "code", "error")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var g *GatewayMetrics
	var o *OutboxMetrics
	var p *PaymentMetrics
	assert.NotPanics(t, func() {
		g.Observe("x", "y", 500, time.Second)
		o.IncPublished("order_created")
		o.IncFailed("order_created")
		o.IncDeadLetter("order_created")
		p.IncTransition("webhook", "completed")
		NewOutboxMetrics(nil).IncPublished("order_created")
	})
}

func TestOutboxAndPaymentMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewOutboxMetrics(reg)
	p := NewPaymentMetrics(reg)
	o.IncPublished("payment_status_changed")
	o.IncPublished("payment_status_changed")
	p.IncTransition("reconcile", "failed")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "estore_outbox_published_total", "event_type", "payment_status_changed")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "estore_payment_transitions_total", "source", "reconcile")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)
}
