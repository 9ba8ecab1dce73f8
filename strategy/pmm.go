package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/models"
)

// floorPct is the clamp floor for computed levels, as a fraction of mid.
// No level is ever placed at or below zero.
var floorPct = decimal.RequireFromString("0.01")

// PureMMConfig configures symmetric market making around a moving mid.
type PureMMConfig struct {
	Base             string
	Quote            string
	SpreadPct        decimal.Decimal // per-level spacing, e.g. 0.5 for 0.5%
	LevelsPerSide    int
	OrderAmount      decimal.Decimal // base units per order
	Refresh          time.Duration
	SlippageBps      int
	UseMEVProtection bool
}

// PureMM maintains buy levels below and sell levels above a periodically
// recomputed mid price. Each refresh replaces the ladder; computed prices
// at or below zero are clamped to 1% of mid. Crossed levels emit market
// swaps; a failed emission reopens its level for the next tick. The
// strategy runs until externally stopped.
type PureMM struct {
	cfg PureMMConfig

	buys  []models.PriceLevel
	sells []models.PriceLevel

	lastRefresh time.Time
	pendingSide models.Side
	pendingIdx  int
	inFlight    bool
}

func NewPureMM(cfg PureMMConfig) *PureMM {
	if cfg.LevelsPerSide <= 0 {
		cfg.LevelsPerSide = 1
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Minute
	}
	return &PureMM{cfg: cfg}
}

func (p *PureMM) Name() string { return "pure_mm" }

func (p *PureMM) Pair() (string, string) { return p.cfg.Base, p.cfg.Quote }

func (p *PureMM) TickInterval() time.Duration { return time.Second }

// rebuild cancels and replaces both ladders around mid.
func (p *PureMM) rebuild(mid decimal.Decimal) {
	floor := mid.Mul(floorPct)
	hundred := decimal.NewFromInt(100)

	p.buys = p.buys[:0]
	p.sells = p.sells[:0]
	for i := 1; i <= p.cfg.LevelsPerSide; i++ {
		step := p.cfg.SpreadPct.Mul(decimal.NewFromInt(int64(i))).Div(hundred)

		up := mid.Mul(decimal.NewFromInt(1).Add(step))
		p.sells = append(p.sells, models.PriceLevel{
			Index: i - 1, Price: up, Side: models.SideSell, Status: models.LevelOpen,
		})

		dn := mid.Mul(decimal.NewFromInt(1).Sub(step))
		if dn.Sign() <= 0 {
			dn = floor
		}
		p.buys = append(p.buys, models.PriceLevel{
			Index: i - 1, Price: dn, Side: models.SideBuy, Status: models.LevelOpen,
		})
	}
}

func (p *PureMM) Evaluate(now time.Time, snap models.MarketSnapshot) ([]OrderIntent, []string) {
	if p.inFlight || snap.Price.Sign() <= 0 {
		return nil, nil
	}

	if len(p.buys) == 0 || now.Sub(p.lastRefresh) >= p.cfg.Refresh {
		p.rebuild(snap.Price)
		p.lastRefresh = now
	}

	// Innermost crossed sell level first, then innermost crossed buy.
	for i := range p.sells {
		lvl := &p.sells[i]
		if lvl.Status == models.LevelOpen && snap.Price.GreaterThanOrEqual(lvl.Price) {
			return p.emit(lvl, models.SideSell, i, snap)
		}
	}
	for i := range p.buys {
		lvl := &p.buys[i]
		if lvl.Status == models.LevelOpen && snap.Price.LessThanOrEqual(lvl.Price) {
			return p.emit(lvl, models.SideBuy, i, snap)
		}
	}
	return nil, nil
}

func (p *PureMM) emit(lvl *models.PriceLevel, side models.Side, idx int, snap models.MarketSnapshot) ([]OrderIntent, []string) {
	spendIsBase := side == models.SideSell
	spend := models.SpendAmount(snap.Price, p.cfg.OrderAmount, true, spendIsBase)
	if spend.Sign() <= 0 {
		return nil, nil
	}

	lvl.Status = models.LevelTriggered
	p.pendingSide = side
	p.pendingIdx = idx
	p.inFlight = true

	return []OrderIntent{{
		Side:             side,
		Amount:           spend,
		AmountIsBase:     spendIsBase,
		Price:            lvl.Price,
		Reason:           fmt.Sprintf("mm %s level %d crossed at %s", side, idx, snap.Price),
		SlippageBps:      p.cfg.SlippageBps,
		UseMEVProtection: p.cfg.UseMEVProtection,
	}}, nil
}

func (p *PureMM) OnResult(res Result) {
	if !p.inFlight {
		return
	}
	p.inFlight = false

	var lvl *models.PriceLevel
	if p.pendingSide == models.SideSell {
		lvl = &p.sells[p.pendingIdx]
	} else {
		lvl = &p.buys[p.pendingIdx]
	}
	if res.Filled {
		lvl.Status = models.LevelFilled
	} else {
		// Reopen so the level can fire again on a later tick.
		lvl.Status = models.LevelOpen
	}
}

// Done: pure market making never terminates on its own.
func (p *PureMM) Done() (bool, string) { return false, "" }

// BuyLevels returns a copy of the buy-side ladder.
func (p *PureMM) BuyLevels() []models.PriceLevel {
	out := make([]models.PriceLevel, len(p.buys))
	copy(out, p.buys)
	return out
}

// SellLevels returns a copy of the sell-side ladder.
func (p *PureMM) SellLevels() []models.PriceLevel {
	out := make([]models.PriceLevel, len(p.sells))
	copy(out, p.sells)
	return out
}
