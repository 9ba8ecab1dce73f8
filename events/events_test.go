package events

import (
	"testing"

	"swapflow/models"
)

type countingSink struct {
	Nop
	created int
	stopped int
	warns   int
}

func (c *countingSink) OnOrderCreated(*models.Order)     { c.created++ }
func (c *countingSink) OnStrategyStopped(_, _, _ string) { c.stopped++ }
func (c *countingSink) OnWarning(_, _, _ string)         { c.warns++ }

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{}
	f := NewFanout(a, b)

	o := &models.Order{ID: "w-s-1", Wallet: "w", Strategy: "s"}
	f.OnOrderCreated(o)
	f.OnStrategyStopped("w", "s", "completed")
	f.OnWarning("w", "s", "heads up")

	for i, c := range []*countingSink{a, b} {
		if c.created != 1 || c.stopped != 1 || c.warns != 1 {
			t.Errorf("sink %d counts = %+v, want 1 each", i, *c)
		}
	}
}

func TestNopImplementsSink(t *testing.T) {
	var s Sink = Nop{}
	// All handlers are no-ops and must not panic on nil orders.
	s.OnOrderCreated(nil)
	s.OnOrderFilled(nil, nil)
	s.OnOrderFailed(nil, "x")
	s.OnConnectionHealthChanged("down")
}
