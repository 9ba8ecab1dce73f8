package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"swapflow/models"
)

// OrderIntent is a concrete swap a strategy wants executed this tick.
// Amount is already in spend-token units.
type OrderIntent struct {
	Side             models.Side
	Amount           decimal.Decimal
	AmountIsBase     bool
	Price            decimal.Decimal // target level that triggered, zero for market
	Reason           string
	SlippageBps      int
	UseMEVProtection bool
}

// Result feeds a submission outcome back into the state machine that
// emitted the intent. Exactly one Result is delivered per intent, in
// emission order.
type Result struct {
	Intent OrderIntent
	Filled bool
	Err    error
}

// Strategy is the trigger-evaluation contract shared by all four state
// machines. Evaluate is called once per scheduler tick and must be
// idempotent: an unchanged snapshot with no elapsed interval emits nothing.
// Warnings accompany intents for conditions worth reporting without
// stopping the run.
type Strategy interface {
	Name() string
	Pair() (base, quote string)
	TickInterval() time.Duration
	Evaluate(now time.Time, snap models.MarketSnapshot) (intents []OrderIntent, warnings []string)
	OnResult(res Result)
	// Done reports whether the strategy reached a terminal state, and why.
	Done() (bool, string)
}

// ReasonMaxAttempts is the distinct terminal reason for the DCA
// persistent-failure safety valve. Callers compare against it to tell the
// valve apart from successful completion.
const ReasonMaxAttempts = "stopped: max attempts"
