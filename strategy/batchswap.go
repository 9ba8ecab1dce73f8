package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/models"
)

// BatchSwapConfig configures a one-sided ladder of price-triggered swaps.
type BatchSwapConfig struct {
	Base             string
	Quote            string
	Side             models.Side // all levels share one side
	TotalAmount      decimal.Decimal
	AmountIsBase     bool
	MinPrice         decimal.Decimal
	MaxPrice         decimal.Decimal
	NumLevels        int
	Distribution     string // "uniform" | "bell"
	SlippageBps      int
	UseMEVProtection bool
}

// BatchSwap lays a fixed ladder of levels across [MinPrice, MaxPrice]. A
// level moves open -> triggered when the market crosses it and emits exactly
// one order; levels that never cross never emit. Several levels crossing in
// one tick are all emitted, with a warning recorded.
type BatchSwap struct {
	cfg     BatchSwapConfig
	levels  []models.PriceLevel
	amounts []decimal.Decimal // per level, user basis

	pending []int // level indexes awaiting results, emission order
	filled  int
	failed  int
}

func NewBatchSwap(cfg BatchSwapConfig) *BatchSwap {
	if cfg.NumLevels <= 0 {
		cfg.NumLevels = 1
	}
	b := &BatchSwap{cfg: cfg}
	prices := levelGrid(cfg.MinPrice, cfg.MaxPrice, cfg.NumLevels)
	weights := distributionWeights(cfg.NumLevels, cfg.Distribution)
	for i, p := range prices {
		b.levels = append(b.levels, models.PriceLevel{
			Index:  i,
			Price:  p,
			Side:   cfg.Side,
			Status: models.LevelOpen,
		})
		b.amounts = append(b.amounts, cfg.TotalAmount.Mul(weights[i]))
	}
	return b
}

// levelGrid spaces n levels linearly from min to max inclusive.
func levelGrid(min, max decimal.Decimal, n int) []decimal.Decimal {
	if n == 1 {
		return []decimal.Decimal{min}
	}
	step := max.Sub(min).Div(decimal.NewFromInt(int64(n - 1)))
	grid := make([]decimal.Decimal, 0, n)
	for i := 0; i < n; i++ {
		grid = append(grid, min.Add(step.Mul(decimal.NewFromInt(int64(i)))))
	}
	return grid
}

// distributionWeights splits the total across levels: uniform, or a
// bell shape from gaussian weights centered on the middle level.
func distributionWeights(n int, kind string) []decimal.Decimal {
	weights := make([]decimal.Decimal, n)
	if kind != "bell" || n == 1 {
		w := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n)))
		for i := range weights {
			weights[i] = w
		}
		return weights
	}

	center := float64(n-1) / 2.0
	sigma := math.Max(1.0, float64(n)/6.0)
	raw := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		raw[i] = math.Exp(-0.5 * math.Pow((float64(i)-center)/sigma, 2))
		sum += raw[i]
	}
	for i := range weights {
		weights[i] = decimal.NewFromFloat(raw[i] / sum)
	}
	return weights
}

func (b *BatchSwap) Name() string { return "batch_swap" }

func (b *BatchSwap) Pair() (string, string) { return b.cfg.Base, b.cfg.Quote }

func (b *BatchSwap) TickInterval() time.Duration { return time.Second }

// crossed reports whether the market price has passed the level for this
// ladder's side: sells trigger at or above, buys at or below.
func (b *BatchSwap) crossed(price, level decimal.Decimal) bool {
	if b.cfg.Side == models.SideSell {
		return price.GreaterThanOrEqual(level)
	}
	return price.LessThanOrEqual(level)
}

func (b *BatchSwap) Evaluate(now time.Time, snap models.MarketSnapshot) ([]OrderIntent, []string) {
	if len(b.pending) > 0 || snap.Price.Sign() <= 0 {
		return nil, nil
	}

	var intents []OrderIntent
	var triggered []int
	spendIsBase := b.cfg.Side == models.SideSell

	for i := range b.levels {
		lvl := &b.levels[i]
		if lvl.Status != models.LevelOpen {
			continue
		}
		if !b.crossed(snap.Price, lvl.Price) {
			continue
		}

		spend := models.SpendAmount(snap.Price, b.amounts[i], b.cfg.AmountIsBase, spendIsBase)
		if spend.Sign() <= 0 {
			continue
		}

		lvl.Status = models.LevelTriggered
		triggered = append(triggered, i)
		intents = append(intents, OrderIntent{
			Side:             b.cfg.Side,
			Amount:           spend,
			AmountIsBase:     spendIsBase,
			Price:            lvl.Price,
			Reason:           fmt.Sprintf("batch level %d crossed at %s", i, snap.Price),
			SlippageBps:      b.cfg.SlippageBps,
			UseMEVProtection: b.cfg.UseMEVProtection,
		})
	}

	var warnings []string
	if len(triggered) > 1 {
		idx := make([]string, len(triggered))
		for i, t := range triggered {
			idx[i] = fmt.Sprintf("%d", t)
		}
		warnings = append(warnings, fmt.Sprintf(
			"simultaneous trigger of %d levels [%s] at price %s",
			len(triggered), strings.Join(idx, ","), snap.Price))
	}

	b.pending = triggered
	return intents, warnings
}

func (b *BatchSwap) OnResult(res Result) {
	if len(b.pending) == 0 {
		return
	}
	idx := b.pending[0]
	b.pending = b.pending[1:]

	if res.Filled {
		b.levels[idx].Status = models.LevelFilled
		b.filled++
	} else {
		// A triggered level never re-emits: the order manager already
		// spent its retry budget on it.
		b.failed++
	}
}

func (b *BatchSwap) Done() (bool, string) {
	if len(b.pending) > 0 {
		return false, ""
	}
	for i := range b.levels {
		if b.levels[i].Status == models.LevelOpen {
			return false, ""
		}
	}
	return true, fmt.Sprintf("completed: %d levels filled, %d failed", b.filled, b.failed)
}

// Levels returns a copy of the ladder for inspection.
func (b *BatchSwap) Levels() []models.PriceLevel {
	out := make([]models.PriceLevel, len(b.levels))
	copy(out, b.levels)
	return out
}
