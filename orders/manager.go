package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"swapflow/connector"
	"swapflow/events"
	"swapflow/logger"
	"swapflow/models"
	"swapflow/monitor"
)

// Config tunes submission behaviour for one manager.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration // first backoff delay
	Multiplier    float64       // delay growth per attempt, defaults to 2
	MaxDelay      time.Duration
	SubmitTimeout time.Duration // per connector call

	// NativeSymbol and GasReserve guard the pre-submission gas check: the
	// wallet must hold at least GasReserve of the chain's native token.
	NativeSymbol string
	GasReserve   decimal.Decimal
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = models.DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
}

// ExhaustedError reports that the retry budget was spent on network errors.
// It is distinct from a single-attempt logic failure so strategies can
// decide whether to keep scheduling future orders.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("submission exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err is a retry-budget exhaustion.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Summary aggregates order outcomes for one run.
type Summary struct {
	Total     int     `json:"total"`
	Filled    int     `json:"filled"`
	Failed    int     `json:"failed"`
	Abandoned int     `json:"abandoned"`
	Pending   int     `json:"pending"`
	FillRate  float64 `json:"fill_rate"`
}

// Manager validates, submits and retries orders for a single wallet-strategy
// run. It owns the run's order set and the monotonic sequence counter; the
// connection monitor it records into is shared across runs.
type Manager struct {
	wallet   string
	strategy string
	cfg      Config

	conn connector.Connector
	mon  *monitor.Monitor
	sink events.Sink
	log  *logger.Log

	mu     sync.Mutex
	seq    int64
	orders map[string]*models.Order
}

func NewManager(wallet, strategy string, conn connector.Connector, mon *monitor.Monitor, sink events.Sink, cfg Config) *Manager {
	cfg.applyDefaults()
	if sink == nil {
		sink = events.Nop{}
	}
	return &Manager{
		wallet:   wallet,
		strategy: strategy,
		cfg:      cfg,
		conn:     conn,
		mon:      mon,
		sink:     sink,
		log:      logger.GetLogger(),
		orders:   make(map[string]*models.Order),
	}
}

// Create registers a new pending order with the next sequence number.
func (m *Manager) Create(side models.Side, base, quote string, amount decimal.Decimal, amountIsBase bool, price decimal.Decimal, reason string) *models.Order {
	m.mu.Lock()
	m.seq++
	o := &models.Order{
		ID:           models.OrderID(m.wallet, m.strategy, m.seq),
		Seq:          m.seq,
		Wallet:       m.wallet,
		Strategy:     m.strategy,
		Side:         side,
		Base:         base,
		Quote:        quote,
		Amount:       amount,
		AmountIsBase: amountIsBase,
		Price:        price,
		Reason:       reason,
		Status:       models.OrderPending,
		MaxAttempts:  m.cfg.MaxAttempts,
		CreatedAt:    time.Now().UTC(),
	}
	m.orders[o.ID] = o
	m.mu.Unlock()

	logger.IncrementOrderCreated()
	m.sink.OnOrderCreated(o)
	return o
}

// Validate runs the pre-submission checks: spend-token balance, native gas
// reserve, router allowance. A failure is a validation-classified error and
// is never retried.
func (m *Manager) Validate(ctx context.Context, o *models.Order) error {
	spend := o.SpendSymbol()

	balance, err := m.conn.GetBalance(ctx, m.wallet, spend)
	if err != nil {
		m.mon.RecordFailure(err)
		return connector.Classify("validate", err)
	}
	m.mon.RecordSuccess()
	if balance.LessThan(o.Amount) {
		return connector.NewValidation("validate", fmt.Errorf(
			"insufficient %s balance: have %s, need %s", spend, balance, o.Amount))
	}

	if m.cfg.NativeSymbol != "" && m.cfg.GasReserve.Sign() > 0 && spend != m.cfg.NativeSymbol {
		native, err := m.conn.GetBalance(ctx, m.wallet, m.cfg.NativeSymbol)
		if err != nil {
			m.mon.RecordFailure(err)
			return connector.Classify("validate", err)
		}
		m.mon.RecordSuccess()
		if native.LessThan(m.cfg.GasReserve) {
			return connector.NewValidation("validate", fmt.Errorf(
				"insufficient %s for gas: have %s, reserve %s", m.cfg.NativeSymbol, native, m.cfg.GasReserve))
		}
	}

	allowance, err := m.conn.CheckAllowance(ctx, m.wallet, spend)
	if err != nil {
		m.mon.RecordFailure(err)
		return connector.Classify("validate", err)
	}
	m.mon.RecordSuccess()
	if allowance.LessThan(o.Amount) {
		return connector.NewValidation("validate", fmt.Errorf(
			"%s not approved for spending: allowance %s, need %s", spend, allowance, o.Amount))
	}

	return nil
}

// Submit validates the order, then attempts submission up to MaxAttempts
// times. Network failures back off exponentially between attempts; any other
// failure aborts immediately. The attempt counter increments on every
// submission regardless of outcome.
func (m *Manager) Submit(ctx context.Context, o *models.Order) (*models.Receipt, error) {
	if err := m.Validate(ctx, o); err != nil {
		m.fail(o, err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	o.SubmittedAt = &now

	params := connector.SwapParams{
		Base:             o.Base,
		Quote:            o.Quote,
		Side:             o.Side,
		Amount:           o.Amount,
		AmountIsBase:     o.AmountIsBase,
		SlippageBps:      o.SlippageBps,
		UseMEVProtection: o.UseMEVProtection,
	}

	var lastErr error
	for o.Attempts < o.MaxAttempts {
		o.Attempts++
		o.Status = models.OrderSubmitted
		logger.IncrementOrderSubmission()
		m.sink.OnOrderSubmitted(o, o.Attempts)

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
		receipt, err := m.conn.SubmitSwap(callCtx, m.wallet, params)
		cancel()

		if err == nil {
			m.mon.RecordSuccess()
			o.TxHash = receipt.TxHash
			o.ExplorerURL = receipt.ExplorerURL
			m.fill(o)
			m.sink.OnOrderFilled(o, receipt)
			return receipt, nil
		}

		m.mon.RecordFailure(err)
		lastErr = err
		o.ErrorMessage = err.Error()

		if connector.ClassifyKind(err) != connector.KindNetwork {
			m.fail(o, err.Error())
			return nil, connector.Classify("submit_swap", err)
		}

		if o.Attempts >= o.MaxAttempts {
			break
		}

		delay := m.backoff(o.Attempts)
		m.log.WithComponent("orders").WithFields(logger.Fields{
			"order_id": o.ID,
			"attempt":  o.Attempts,
			"delay":    delay.String(),
		}).Warn("submission failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.abandon(o, "run stopping during retry backoff")
			return nil, ctx.Err()
		}
	}

	exhausted := &ExhaustedError{Attempts: o.Attempts, Last: lastErr}
	m.fail(o, exhausted.Error())
	return nil, exhausted
}

// backoff returns the delay before the given next attempt: BaseDelay grown by
// Multiplier per completed attempt, capped at MaxDelay.
func (m *Manager) backoff(completedAttempts int) time.Duration {
	delay := float64(m.cfg.BaseDelay)
	for i := 1; i < completedAttempts; i++ {
		delay *= m.cfg.Multiplier
		if delay >= float64(m.cfg.MaxDelay) {
			return m.cfg.MaxDelay
		}
	}
	if delay > float64(m.cfg.MaxDelay) {
		return m.cfg.MaxDelay
	}
	return time.Duration(delay)
}

func (m *Manager) fill(o *models.Order) {
	now := time.Now().UTC()
	o.Status = models.OrderFilled
	o.CompletedAt = &now
	logger.IncrementOrderFilled()
}

func (m *Manager) fail(o *models.Order, reason string) {
	now := time.Now().UTC()
	o.Status = models.OrderFailed
	o.ErrorMessage = reason
	o.CompletedAt = &now
	logger.IncrementOrderFailed()
	m.sink.OnOrderFailed(o, reason)
}

func (m *Manager) abandon(o *models.Order, reason string) {
	now := time.Now().UTC()
	o.Status = models.OrderAbandoned
	o.ErrorMessage = reason
	o.CompletedAt = &now
	logger.IncrementOrderFailed()
	m.sink.OnOrderFailed(o, reason)
}

// Summarize returns outcome counts across all orders this manager created.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Total: len(m.orders)}
	for _, o := range m.orders {
		switch o.Status {
		case models.OrderFilled:
			s.Filled++
		case models.OrderFailed:
			s.Failed++
		case models.OrderAbandoned:
			s.Abandoned++
		default:
			s.Pending++
		}
	}
	if s.Total > 0 {
		s.FillRate = float64(s.Filled) / float64(s.Total) * 100
	}
	return s
}
