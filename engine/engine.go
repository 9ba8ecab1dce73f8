package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"swapflow/connector"
	"swapflow/events"
	"swapflow/internal/metrics"
	"swapflow/logger"
	"swapflow/models"
	"swapflow/monitor"
	"swapflow/orders"
	"swapflow/strategy"
)

// Run binds one strategy instance to the wallet that funds it. Each run
// gets its own order manager; the connection monitor is shared.
type Run struct {
	Wallet   string
	Strategy strategy.Strategy
	Orders   orders.Config
}

// Options tunes engine-wide behaviour.
type Options struct {
	PriceTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.PriceTimeout <= 0 {
		o.PriceTimeout = 10 * time.Second
	}
}

// Engine schedules wallet-strategy runs, one goroutine each. A run loops
// evaluate -> submit -> update until its strategy reports a terminal state
// or the engine context is cancelled. Stop is cooperative: it is observed
// at tick boundaries, so an in-flight order finishes its attempt sequence
// and has its outcome recorded before the run exits.
type Engine struct {
	opts Options
	conn connector.Connector
	mon  *monitor.Monitor
	sink events.Sink
	runs []Run

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func New(conn connector.Connector, mon *monitor.Monitor, sink events.Sink, runs []Run, opts Options) *Engine {
	opts.applyDefaults()
	if sink == nil {
		sink = events.Nop{}
	}
	return &Engine{
		opts: opts,
		conn: conn,
		mon:  mon,
		sink: sink,
		runs: runs,
		wg:   &sync.WaitGroup{},
		log:  logger.GetLogger(),
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	if len(e.runs) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("no runs configured")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("engine").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"runs": len(e.runs)}).Info("starting engine")

	for _, run := range e.runs {
		e.wg.Add(1)
		go e.runLoop(run)
	}

	log.Info("engine started successfully")
	return nil
}

// Stop blocks until every run has observed cancellation and exited. The
// engine context must already be cancelled by the caller.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("engine").Info("stopping engine")
	e.wg.Wait()
	e.log.WithComponent("engine").Info("engine stopped")
}

// Wait blocks until all runs terminate on their own or the context ends.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) runLoop(run Run) {
	defer e.wg.Done()

	runID := uuid.NewString()
	name := run.Strategy.Name()
	log := e.log.WithComponent("engine").WithFields(logger.Fields{
		"run_id":   runID,
		"wallet":   run.Wallet,
		"strategy": name,
	})

	mgr := orders.NewManager(run.Wallet, name, e.conn, e.mon, e.sink, run.Orders)

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	base, quote := run.Strategy.Pair()
	log.WithFields(logger.Fields{"base": base, "quote": quote}).Info("run started")

	ticker := time.NewTicker(run.Strategy.TickInterval())
	defer ticker.Stop()

	reason := "stopped: shutdown"
	for {
		select {
		case <-e.ctx.Done():
			log.Info("run stopped due to context cancellation")
			e.finish(run, mgr, log, reason)
			return
		case <-ticker.C:
			done, why := e.tick(run, mgr, log)
			if done {
				e.finish(run, mgr, log, why)
				return
			}
		}
	}
}

// tick executes one evaluate -> submit -> update pass. It returns the
// strategy's terminal state so the loop can exit.
func (e *Engine) tick(run Run, mgr *orders.Manager, log *logger.Entry) (bool, string) {
	base, quote := run.Strategy.Pair()

	priceCtx, cancel := context.WithTimeout(e.ctx, e.opts.PriceTimeout)
	price, err := e.conn.GetPrice(priceCtx, base, quote)
	cancel()
	if err != nil {
		e.mon.RecordFailure(err)
		log.WithError(err).Debug("price fetch failed, skipping tick")
		return false, ""
	}
	e.mon.RecordSuccess()

	snap := models.MarketSnapshot{
		Base:  base,
		Quote: quote,
		Price: price,
		At:    time.Now().UTC(),
	}

	intents, warnings := run.Strategy.Evaluate(snap.At, snap)
	for _, w := range warnings {
		e.sink.OnWarning(run.Wallet, run.Strategy.Name(), w)
	}

	// Intents submit sequentially in trigger order.
	for _, intent := range intents {
		o := mgr.Create(intent.Side, base, quote, intent.Amount, intent.AmountIsBase, intent.Price, intent.Reason)
		o.SlippageBps = intent.SlippageBps
		o.UseMEVProtection = intent.UseMEVProtection

		_, err := mgr.Submit(e.ctx, o)
		run.Strategy.OnResult(strategy.Result{
			Intent: intent,
			Filled: err == nil,
			Err:    err,
		})

		if e.ctx.Err() != nil {
			return false, ""
		}
	}

	return run.Strategy.Done()
}

// finish records the terminal summary and emits the stop event.
func (e *Engine) finish(run Run, mgr *orders.Manager, log *logger.Entry, reason string) {
	summary := mgr.Summarize()
	log.WithFields(logger.Fields{
		"reason":    reason,
		"total":     summary.Total,
		"filled":    summary.Filled,
		"failed":    summary.Failed,
		"abandoned": summary.Abandoned,
		"fill_rate": fmt.Sprintf("%.1f%%", summary.FillRate),
	}).Info("run finished")

	e.sink.OnStrategyStopped(run.Wallet, run.Strategy.Name(), reason)
}
