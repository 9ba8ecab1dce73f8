package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/connector"
	"swapflow/models"
	"swapflow/monitor"
	"swapflow/orders"
	"swapflow/strategy"
)

type fakeConnector struct {
	mu        sync.Mutex
	priceErrs int // number of leading GetPrice calls that fail
	submits   int
}

func (f *fakeConnector) GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceErrs > 0 {
		f.priceErrs--
		return decimal.Zero, connector.NewNetwork("get_price", errors.New("rpc timeout"))
	}
	return decimal.RequireFromString("300"), nil
}

func (f *fakeConnector) GetBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	return decimal.RequireFromString("1000000"), nil
}

func (f *fakeConnector) CheckAllowance(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	return decimal.RequireFromString("1000000"), nil
}

func (f *fakeConnector) SubmitSwap(ctx context.Context, wallet string, params connector.SwapParams) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return &models.Receipt{TxHash: "0xabc"}, nil
}

func (f *fakeConnector) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// countdown emits one sell intent per tick until n fills, then terminates.
type countdown struct {
	mu       sync.Mutex
	n        int
	warnOnce bool
	warned   bool
}

func (c *countdown) Name() string                { return "countdown" }
func (c *countdown) Pair() (string, string)      { return "WBNB", "USDT" }
func (c *countdown) TickInterval() time.Duration { return time.Millisecond }

func (c *countdown) Evaluate(now time.Time, snap models.MarketSnapshot) ([]strategy.OrderIntent, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n <= 0 {
		return nil, nil
	}
	var warnings []string
	if c.warnOnce && !c.warned {
		c.warned = true
		warnings = append(warnings, "test warning")
	}
	return []strategy.OrderIntent{{
		Side:         models.SideSell,
		Amount:       decimal.RequireFromString("1"),
		AmountIsBase: true,
		Reason:       "countdown",
	}}, warnings
}

func (c *countdown) OnResult(res strategy.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Filled {
		c.n--
	}
}

func (c *countdown) Done() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n <= 0 {
		return true, "completed: countdown"
	}
	return false, ""
}

type stopRecorder struct {
	mu       sync.Mutex
	stops    []string
	warnings []string
	done     chan struct{}
}

func newStopRecorder() *stopRecorder {
	return &stopRecorder{done: make(chan struct{}, 8)}
}

func (r *stopRecorder) OnOrderCreated(*models.Order)                 {}
func (r *stopRecorder) OnOrderSubmitted(*models.Order, int)          {}
func (r *stopRecorder) OnOrderFilled(*models.Order, *models.Receipt) {}
func (r *stopRecorder) OnOrderFailed(*models.Order, string)          {}
func (r *stopRecorder) OnConnectionHealthChanged(string)             {}

func (r *stopRecorder) OnStrategyStopped(wallet, strat, reason string) {
	r.mu.Lock()
	r.stops = append(r.stops, reason)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *stopRecorder) OnWarning(wallet, strat, msg string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

func (r *stopRecorder) waitStop(t *testing.T) string {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the run to stop")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops[len(r.stops)-1]
}

func newTestEngine(conn connector.Connector, sink *stopRecorder, runs []Run) *Engine {
	mon := monitor.New("test", 3, 10, nil)
	return New(conn, mon, sink, runs, Options{})
}

func TestEngineRunCompletes(t *testing.T) {
	conn := &fakeConnector{}
	sink := newStopRecorder()
	eng := newTestEngine(conn, sink, []Run{{
		Wallet:   "w1",
		Strategy: &countdown{n: 2},
		Orders:   orders.Config{BaseDelay: time.Millisecond},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reason := sink.waitStop(t)
	eng.Wait()

	if reason != "completed: countdown" {
		t.Errorf("stop reason = %q", reason)
	}
	if got := conn.submitCount(); got != 2 {
		t.Errorf("submissions = %d, want 2", got)
	}
}

func TestEngineStopsOnCancellation(t *testing.T) {
	conn := &fakeConnector{}
	sink := newStopRecorder()
	eng := newTestEngine(conn, sink, []Run{{
		Wallet:   "w1",
		Strategy: &countdown{n: 1 << 30}, // never finishes on its own
		Orders:   orders.Config{BaseDelay: time.Millisecond},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	cancel()
	reason := sink.waitStop(t)
	eng.Stop()

	if reason != "stopped: shutdown" {
		t.Errorf("stop reason = %q", reason)
	}
}

func TestEngineSkipsTicksWhilePriceUnavailable(t *testing.T) {
	conn := &fakeConnector{priceErrs: 3}
	sink := newStopRecorder()
	eng := newTestEngine(conn, sink, []Run{{
		Wallet:   "w1",
		Strategy: &countdown{n: 1},
		Orders:   orders.Config{BaseDelay: time.Millisecond},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reason := sink.waitStop(t)
	eng.Wait()
	if reason != "completed: countdown" {
		t.Errorf("stop reason = %q, run should survive transient price failures", reason)
	}
}

func TestEngineForwardsWarnings(t *testing.T) {
	conn := &fakeConnector{}
	sink := newStopRecorder()
	eng := newTestEngine(conn, sink, []Run{{
		Wallet:   "w1",
		Strategy: &countdown{n: 1, warnOnce: true},
		Orders:   orders.Config{BaseDelay: time.Millisecond},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sink.waitStop(t)
	eng.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.warnings) != 1 || sink.warnings[0] != "test warning" {
		t.Errorf("warnings = %v, want one test warning", sink.warnings)
	}
}

func TestEngineStartGuards(t *testing.T) {
	conn := &fakeConnector{}
	sink := newStopRecorder()

	eng := newTestEngine(conn, sink, nil)
	if err := eng.Start(context.Background()); err == nil {
		t.Error("Start with no runs should fail")
	}

	eng = newTestEngine(conn, sink, []Run{{
		Wallet:   "w1",
		Strategy: &countdown{n: 1},
		Orders:   orders.Config{BaseDelay: time.Millisecond},
	}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := eng.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}
	sink.waitStop(t)
	eng.Wait()
}
