package connector

import (
	"context"

	"github.com/shopspring/decimal"

	"swapflow/models"
)

// SwapParams describes a single market swap submission.
type SwapParams struct {
	Base             string
	Quote            string
	Side             models.Side
	Amount           decimal.Decimal // in spend-token units
	AmountIsBase     bool
	SlippageBps      int
	DeadlineSeconds  int
	UseMEVProtection bool
}

// Connector is the narrow contract the engine consumes. Implementations
// resolve every failure into a classified *Error before returning, so callers
// never re-infer error kinds.
//
// GetPrice returns the quote-per-base price for one base unit.
type Connector interface {
	GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error)
	GetBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error)
	CheckAllowance(ctx context.Context, wallet, token string) (decimal.Decimal, error)
	SubmitSwap(ctx context.Context, wallet string, params SwapParams) (*models.Receipt, error)
}
