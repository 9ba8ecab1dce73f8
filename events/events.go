package events

import (
	"swapflow/logger"
	"swapflow/models"
)

// Sink consumes order and health events. Sinks are observational: nothing a
// sink does feeds back into engine decisions. Implementations must not block
// for long; slow deliveries are the sink's own problem.
type Sink interface {
	OnOrderCreated(o *models.Order)
	OnOrderSubmitted(o *models.Order, attempt int)
	OnOrderFilled(o *models.Order, receipt *models.Receipt)
	OnOrderFailed(o *models.Order, reason string)
	OnStrategyStopped(wallet, strategy, reason string)
	OnConnectionHealthChanged(state string)
	OnWarning(wallet, strategy, msg string)
}

// Fanout delivers every event to each wrapped sink in order.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) OnOrderCreated(o *models.Order) {
	for _, s := range f.sinks {
		s.OnOrderCreated(o)
	}
}

func (f *Fanout) OnOrderSubmitted(o *models.Order, attempt int) {
	for _, s := range f.sinks {
		s.OnOrderSubmitted(o, attempt)
	}
}

func (f *Fanout) OnOrderFilled(o *models.Order, receipt *models.Receipt) {
	for _, s := range f.sinks {
		s.OnOrderFilled(o, receipt)
	}
}

func (f *Fanout) OnOrderFailed(o *models.Order, reason string) {
	for _, s := range f.sinks {
		s.OnOrderFailed(o, reason)
	}
}

func (f *Fanout) OnStrategyStopped(wallet, strategy, reason string) {
	for _, s := range f.sinks {
		s.OnStrategyStopped(wallet, strategy, reason)
	}
}

func (f *Fanout) OnConnectionHealthChanged(state string) {
	for _, s := range f.sinks {
		s.OnConnectionHealthChanged(state)
	}
}

func (f *Fanout) OnWarning(wallet, strategy, msg string) {
	for _, s := range f.sinks {
		s.OnWarning(wallet, strategy, msg)
	}
}

// LogSink writes every event through the structured logger.
type LogSink struct {
	log *logger.Log
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.GetLogger()}
}

func (l *LogSink) entry(o *models.Order) *logger.Entry {
	return l.log.WithComponent("events").WithFields(logger.Fields{
		"order_id": o.ID,
		"wallet":   o.Wallet,
		"strategy": o.Strategy,
		"side":     string(o.Side),
		"pair":     o.Base + "/" + o.Quote,
		"amount":   o.Amount.String(),
	})
}

func (l *LogSink) OnOrderCreated(o *models.Order) {
	l.entry(o).WithFields(logger.Fields{"reason": o.Reason}).Info("order created")
}

func (l *LogSink) OnOrderSubmitted(o *models.Order, attempt int) {
	l.entry(o).WithFields(logger.Fields{
		"attempt":      attempt,
		"max_attempts": o.MaxAttempts,
	}).Info("order submitted")
}

func (l *LogSink) OnOrderFilled(o *models.Order, receipt *models.Receipt) {
	e := l.entry(o)
	if receipt != nil {
		e = e.WithFields(logger.Fields{
			"tx_hash":      receipt.TxHash,
			"explorer_url": receipt.ExplorerURL,
		})
	}
	e.Info("order filled")
}

func (l *LogSink) OnOrderFailed(o *models.Order, reason string) {
	l.entry(o).WithFields(logger.Fields{
		"failure_reason": reason,
		"attempts":       o.Attempts,
	}).Error("order failed")
}

func (l *LogSink) OnStrategyStopped(wallet, strategy, reason string) {
	l.log.WithComponent("events").WithFields(logger.Fields{
		"wallet":   wallet,
		"strategy": strategy,
		"reason":   reason,
	}).Info("strategy stopped")
}

func (l *LogSink) OnConnectionHealthChanged(state string) {
	l.log.WithComponent("events").WithFields(logger.Fields{
		"state": state,
	}).Warn("connection health changed")
}

func (l *LogSink) OnWarning(wallet, strategy, msg string) {
	l.log.WithComponent("events").WithFields(logger.Fields{
		"wallet":   wallet,
		"strategy": strategy,
	}).Warn(msg)
}

// Nop discards all events. Useful as a test default.
type Nop struct{}

func (Nop) OnOrderCreated(*models.Order)                 {}
func (Nop) OnOrderSubmitted(*models.Order, int)          {}
func (Nop) OnOrderFilled(*models.Order, *models.Receipt) {}
func (Nop) OnOrderFailed(*models.Order, string)          {}
func (Nop) OnStrategyStopped(string, string, string)     {}
func (Nop) OnConnectionHealthChanged(string)             {}
func (Nop) OnWarning(string, string, string)             {}
