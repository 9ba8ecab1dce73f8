package events

import (
	"swapflow/internal/metrics"
	"swapflow/models"
)

// MetricsSink mirrors order and health events into prometheus counters.
type MetricsSink struct {
	Nop
}

func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

func (MetricsSink) OnOrderCreated(o *models.Order) {
	metrics.OrdersCreated.WithLabelValues(o.Wallet, o.Strategy).Inc()
}

func (MetricsSink) OnOrderSubmitted(o *models.Order, attempt int) {
	metrics.OrdersSubmitted.WithLabelValues(o.Wallet, o.Strategy).Inc()
}

func (MetricsSink) OnOrderFilled(o *models.Order, receipt *models.Receipt) {
	metrics.OrdersFilled.WithLabelValues(o.Wallet, o.Strategy).Inc()
	observeLatency(o)
}

func (MetricsSink) OnOrderFailed(o *models.Order, reason string) {
	metrics.OrdersFailed.WithLabelValues(o.Wallet, o.Strategy).Inc()
	observeLatency(o)
}

func (MetricsSink) OnConnectionHealthChanged(state string) {
	metrics.ConnectionHealth.Set(metrics.HealthValue(state))
}

func observeLatency(o *models.Order) {
	if o.SubmittedAt == nil || o.CompletedAt == nil {
		return
	}
	elapsed := o.CompletedAt.Sub(*o.SubmittedAt)
	metrics.SubmissionLatency.WithLabelValues(o.Wallet, o.Strategy).
		Observe(float64(elapsed.Milliseconds()))
}
