package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts applied payment status transitions by source.
type PaymentMetrics struct {
	transitions *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estore_payment_transitions_total",
		Help: "Payment status transitions applied, by source and resulting status.",
	}, []string{"source", "status"})
	reg.MustRegister(transitions)
	return &PaymentMetrics{transitions: transitions}
}

// IncTransition records a transition that changed the stored status.
func (p *PaymentMetrics) IncTransition(source, status string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(normalizeLabel(source), normalizeLabel(status)).Inc()
}
