package strategy

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/models"
)

// AttemptsPerOrder scales the DCA retry budget: the strategy gives up after
// NumOrders * AttemptsPerOrder emissions regardless of how many filled.
const AttemptsPerOrder = 10

// DCAConfig configures a dollar-cost-averaging run.
type DCAConfig struct {
	Base             string
	Quote            string
	Side             models.Side
	TotalAmount      decimal.Decimal // in AmountIsBase basis
	AmountIsBase     bool
	NumOrders        int
	Interval         time.Duration
	Distribution     string // "uniform" | "random"
	SlippageBps      int
	UseMEVProtection bool
}

// DCA spreads a total allocation over NumOrders interval-spaced swaps.
// attempted counts every emission; ordersLeft decrements only on confirmed
// fills. The run terminates cleanly when either ordersLeft reaches zero or
// the attempt budget is spent; the latter is reported as a distinct terminal
// state, never merged with completion.
type DCA struct {
	cfg DCAConfig

	remaining  decimal.Decimal
	ordersLeft int
	attempted  int
	maxAttempt int

	lastEmit    time.Time
	inFlight    bool
	lastChunk   decimal.Decimal
	terminal    bool
	terminalWhy string

	rng *rand.Rand
}

func NewDCA(cfg DCAConfig) *DCA {
	if cfg.NumOrders <= 0 {
		cfg.NumOrders = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &DCA{
		cfg:        cfg,
		remaining:  cfg.TotalAmount,
		ordersLeft: cfg.NumOrders,
		maxAttempt: cfg.NumOrders * AttemptsPerOrder,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *DCA) Name() string { return "dca" }

func (d *DCA) Pair() (string, string) { return d.cfg.Base, d.cfg.Quote }

func (d *DCA) TickInterval() time.Duration {
	if d.cfg.Interval < time.Second {
		return d.cfg.Interval
	}
	return time.Second
}

// pickChunk sizes the next order in user-basis units.
func (d *DCA) pickChunk() decimal.Decimal {
	if d.ordersLeft <= 1 {
		return d.remaining
	}
	mean := d.remaining.Div(decimal.NewFromInt(int64(d.ordersLeft)))
	if d.cfg.Distribution == "random" {
		// Uniform draw from [0.5, 1.5] x mean, clamped to what is left.
		factor := decimal.NewFromFloat(0.5 + d.rng.Float64())
		chunk := mean.Mul(factor)
		if chunk.GreaterThan(d.remaining) {
			return d.remaining
		}
		return chunk
	}
	return mean
}

func (d *DCA) Evaluate(now time.Time, snap models.MarketSnapshot) ([]OrderIntent, []string) {
	if d.terminal || d.inFlight {
		return nil, nil
	}
	if d.attempted >= d.maxAttempt {
		d.terminal = true
		d.terminalWhy = ReasonMaxAttempts
		return nil, nil
	}
	if d.ordersLeft <= 0 || d.remaining.Sign() <= 0 {
		d.terminal = true
		d.terminalWhy = fmt.Sprintf("completed: %d orders filled", d.cfg.NumOrders)
		return nil, nil
	}
	if !d.lastEmit.IsZero() && now.Sub(d.lastEmit) < d.cfg.Interval {
		return nil, nil
	}
	if snap.Price.Sign() <= 0 {
		return nil, nil
	}

	chunk := d.pickChunk()
	spendIsBase := d.cfg.Side == models.SideSell
	spend := models.SpendAmount(snap.Price, chunk, d.cfg.AmountIsBase, spendIsBase)
	if spend.Sign() <= 0 {
		return nil, nil
	}

	d.attempted++
	d.lastEmit = now
	d.inFlight = true
	d.lastChunk = chunk

	intent := OrderIntent{
		Side:             d.cfg.Side,
		Amount:           spend,
		AmountIsBase:     spendIsBase,
		Reason:           fmt.Sprintf("dca %d/%d (attempt %d/%d)", d.cfg.NumOrders-d.ordersLeft+1, d.cfg.NumOrders, d.attempted, d.maxAttempt),
		SlippageBps:      d.cfg.SlippageBps,
		UseMEVProtection: d.cfg.UseMEVProtection,
	}
	return []OrderIntent{intent}, nil
}

func (d *DCA) OnResult(res Result) {
	d.inFlight = false
	if res.Filled {
		d.remaining = d.remaining.Sub(d.lastChunk)
		if d.remaining.Sign() < 0 {
			d.remaining = decimal.Zero
		}
		d.ordersLeft--
	}
	// Failures keep ordersLeft as-is; the next tick re-emits until the
	// attempt budget runs out.
	if d.attempted >= d.maxAttempt && d.ordersLeft > 0 {
		d.terminal = true
		d.terminalWhy = ReasonMaxAttempts
	}
	if d.ordersLeft <= 0 || d.remaining.Sign() <= 0 {
		d.terminal = true
		d.terminalWhy = fmt.Sprintf("completed: %d orders filled", d.cfg.NumOrders)
	}
}

func (d *DCA) Done() (bool, string) {
	return d.terminal, d.terminalWhy
}

// Attempted exposes the emission count for reporting.
func (d *DCA) Attempted() int { return d.attempted }

// OrdersLeft exposes the remaining fill count for reporting.
func (d *DCA) OrdersLeft() int { return d.ordersLeft }
