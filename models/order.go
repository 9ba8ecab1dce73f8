package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a swap order relative to the base token.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus tracks an order through its lifecycle. Orders are immutable
// once they reach a terminal status (filled, failed or abandoned).
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderFailed    OrderStatus = "failed"
	OrderAbandoned OrderStatus = "abandoned"
)

// DefaultMaxAttempts is the submission retry budget applied when a strategy
// does not set one explicitly.
const DefaultMaxAttempts = 3

// Order is a single swap intent produced by a strategy and executed by the
// order manager. The ID is stable across retries: wallet, strategy and a
// per-run monotonic sequence number.
type Order struct {
	ID       string `json:"id"`
	Seq      int64  `json:"seq"`
	Wallet   string `json:"wallet"`
	Strategy string `json:"strategy"`

	Side         Side            `json:"side"`
	Base         string          `json:"base"`
	Quote        string          `json:"quote"`
	Amount       decimal.Decimal `json:"amount"`
	AmountIsBase bool            `json:"amount_is_base"`
	Price        decimal.Decimal `json:"price,omitempty"` // target price, zero for market
	Reason       string          `json:"reason"`

	SlippageBps      int  `json:"slippage_bps"`
	UseMEVProtection bool `json:"use_mev_protection"`

	Status      OrderStatus `json:"status"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"max_attempts"`

	TxHash       string `json:"tx_hash,omitempty"`
	ExplorerURL  string `json:"explorer_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OrderID builds the stable string id for a (wallet, strategy, seq) triple.
func OrderID(wallet, strategy string, seq int64) string {
	return fmt.Sprintf("%s-%s-%d", wallet, strategy, seq)
}

// SpendSymbol returns the token the wallet pays with for this order.
func (o *Order) SpendSymbol() string {
	if o.Side == SideSell {
		return o.Base
	}
	return o.Quote
}

// ReceiveSymbol returns the token the wallet receives for this order.
func (o *Order) ReceiveSymbol() string {
	if o.Side == SideSell {
		return o.Quote
	}
	return o.Base
}

// Terminal reports whether the order has reached a final status.
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderFilled, OrderFailed, OrderAbandoned:
		return true
	}
	return false
}

// Receipt is the connector's confirmation of a submitted swap.
type Receipt struct {
	ID          string          `json:"id"`
	TxHash      string          `json:"tx_hash"`
	ExplorerURL string          `json:"explorer_url,omitempty"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	GasUsed     uint64          `json:"gas_used,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}
