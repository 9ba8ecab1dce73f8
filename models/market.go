package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is the per-tick view of the market a strategy evaluates
// against. Price is quoted as quote units per one base unit, matching the
// connector's GetPrice convention.
type MarketSnapshot struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
}

// LevelStatus tracks a price level through its lifecycle.
type LevelStatus string

const (
	LevelOpen      LevelStatus = "open"
	LevelTriggered LevelStatus = "triggered"
	LevelFilled    LevelStatus = "filled"
)

// PriceLevel is one rung of a strategy ladder. Price is always positive;
// strategies clamp computed levels to a floor before constructing these.
type PriceLevel struct {
	Index  int             `json:"index"`
	Price  decimal.Decimal `json:"price"`
	Side   Side            `json:"side"`
	Status LevelStatus     `json:"status"`
}

// SpendAmount converts a user-basis amount to spend-token units using the
// current quote-per-base price. basisIsBase says which token the amount was
// entered in, spendIsBase which token will actually be paid.
func SpendAmount(price, amount decimal.Decimal, basisIsBase, spendIsBase bool) decimal.Decimal {
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	if basisIsBase == spendIsBase {
		return amount
	}
	if spendIsBase {
		// amount entered in quote, paid in base
		return amount.Div(price)
	}
	// amount entered in base, paid in quote
	return amount.Mul(price)
}
