package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/connector"
	"swapflow/models"
)

// SimpleSwapConfig configures a one-shot market swap. The amount basis may
// differ from the spend token: entering the amount in the receive token is
// an exact-output request and needs a price conversion before submission.
type SimpleSwapConfig struct {
	Base             string
	Quote            string
	Side             models.Side
	Amount           decimal.Decimal
	AmountIsBase     bool // basis of Amount
	SlippageBps      int
	UseMEVProtection bool
}

// SimpleSwap executes a single swap and terminates. An exact-output request
// that fails validation because the price moved falls back, at most once,
// to an exact-input order shrunk by the slippage buffer.
type SimpleSwap struct {
	cfg SimpleSwapConfig

	emitted   bool
	inFlight  bool
	fellBack  bool
	lastSpend decimal.Decimal
	terminal  bool
	reason    string
}

func NewSimpleSwap(cfg SimpleSwapConfig) *SimpleSwap {
	return &SimpleSwap{cfg: cfg}
}

func (s *SimpleSwap) Name() string { return "simple_swap" }

func (s *SimpleSwap) Pair() (string, string) { return s.cfg.Base, s.cfg.Quote }

func (s *SimpleSwap) TickInterval() time.Duration { return time.Second }

// exactOutput reports whether the configured amount is in receive-token
// units.
func (s *SimpleSwap) exactOutput() bool {
	spendIsBase := s.cfg.Side == models.SideSell
	return s.cfg.AmountIsBase != spendIsBase
}

func (s *SimpleSwap) Evaluate(now time.Time, snap models.MarketSnapshot) ([]OrderIntent, []string) {
	if s.terminal || s.inFlight || s.emitted {
		return nil, nil
	}

	spendIsBase := s.cfg.Side == models.SideSell
	spend := s.cfg.Amount
	if s.exactOutput() {
		if snap.Price.Sign() <= 0 {
			return nil, nil
		}
		spend = models.SpendAmount(snap.Price, s.cfg.Amount, s.cfg.AmountIsBase, spendIsBase)
	}
	if spend.Sign() <= 0 {
		s.terminal = true
		s.reason = "failed: non-positive spend amount"
		return nil, nil
	}

	s.emitted = true
	s.inFlight = true
	s.lastSpend = spend

	reason := "simple swap"
	if s.exactOutput() {
		reason = fmt.Sprintf("simple swap (exact output %s)", s.cfg.Amount)
	}
	return []OrderIntent{{
		Side:             s.cfg.Side,
		Amount:           spend,
		AmountIsBase:     spendIsBase,
		Reason:           reason,
		SlippageBps:      s.cfg.SlippageBps,
		UseMEVProtection: s.cfg.UseMEVProtection,
	}}, nil
}

func (s *SimpleSwap) OnResult(res Result) {
	s.inFlight = false

	if res.Filled {
		s.terminal = true
		s.reason = "completed: swap filled"
		return
	}

	// Exact-output validation failures get one exact-input retry with the
	// requested size shrunk by the slippage buffer.
	if s.exactOutput() && !s.fellBack && connector.IsKind(res.Err, connector.KindValidation) {
		s.fellBack = true
		s.emitted = false
		buffer := decimal.NewFromInt(int64(s.cfg.SlippageBps)).Div(decimal.NewFromInt(10000))
		fallback := s.lastSpend.Mul(decimal.NewFromInt(1).Sub(buffer))

		spendIsBase := s.cfg.Side == models.SideSell
		s.cfg.Amount = fallback
		s.cfg.AmountIsBase = spendIsBase // now exact input
		return
	}

	s.terminal = true
	s.reason = fmt.Sprintf("failed: %v", res.Err)
}

func (s *SimpleSwap) Done() (bool, string) { return s.terminal, s.reason }
