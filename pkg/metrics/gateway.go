package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks outbound calls to payment, shipping and notification providers.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewGatewayMetrics registers the outbound request metrics on reg.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estore_gateway_requests_total",
		Help: "Outbound provider requests by provider, operation and status code.",
	}, []string{"provider", "operation", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "estore_gateway_request_duration_seconds",
		Help:    "Latency of outbound provider requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	reg.MustRegister(requests, latency)
	return &GatewayMetrics{requests: requests, latency: latency}
}

// Observe records one attempt. A zero status code means the request never got a response.
func (g *GatewayMetrics) Observe(provider, operation string, statusCode int, duration time.Duration) {
	if g == nil || g.requests == nil {
		return
	}
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	g.requests.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), code).Inc()
	g.latency.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
}
