package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"swapflow/config"
	"swapflow/connector/pancake"
	"swapflow/engine"
	"swapflow/events"
	"swapflow/internal/metrics"
	"swapflow/logger"
	"swapflow/models"
	"swapflow/monitor"
	"swapflow/orders"
	"swapflow/strategy"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Swapflow.Name,
		"version": cfg.Swapflow.Version,
	}).Info("starting swapflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.StartReport(ctx, log, 60*time.Second)

	conn, err := pancake.New(ctx, pancake.Config{
		RPCURL:            cfg.Connector.RPCURL,
		ChainID:           cfg.Connector.ChainID,
		Router:            cfg.Connector.Router,
		ExplorerURL:       cfg.Connector.ExplorerURL,
		Tokens:            cfg.Connector.Tokens,
		Wallets:           cfg.WalletKeys(),
		RequestsPerSecond: cfg.Connector.RateLimit.RequestsPerSecond,
		Burst:             cfg.Connector.RateLimit.BurstSize,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create connector")
		os.Exit(1)
	}
	defer conn.Close()

	sinks := []events.Sink{events.NewLogSink(), events.NewMetricsSink()}
	var telegram *events.TelegramSink
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		telegram = events.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		sinks = append(sinks, telegram)
	}
	sink := events.NewFanout(sinks...)

	mon := monitor.New("pancake",
		cfg.Connector.Health.DegradedThreshold,
		cfg.Connector.Health.DownThreshold,
		func(state monitor.State) {
			metrics.ConnectionHealth.Set(metrics.HealthValue(string(state)))
			sink.OnConnectionHealthChanged(string(state))
		})

	if cfg.Metrics.Enabled {
		go metrics.Serve(ctx, cfg.Metrics.Listen)
	}

	runs, err := buildRuns(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to build strategy runs")
		os.Exit(1)
	}

	eng := engine.New(conn, mon, sink, runs, engine.Options{PriceTimeout: cfg.Connector.Timeout})
	if err := eng.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start engine")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	done := make(chan struct{})
	go func() {
		eng.Wait()
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-done:
		log.Info("all runs finished")
	}

	log.Info("starting graceful shutdown")
	cancel()
	eng.Stop()
	if telegram != nil {
		telegram.Stop()
	}

	log.Info("swapflow stopped")
}

// buildRuns turns the strategy list in the config into engine runs. Each
// run shares the connector retry settings.
func buildRuns(cfg *config.Config) ([]engine.Run, error) {
	var gasReserve decimal.Decimal
	if cfg.Connector.GasReserve != "" {
		gasReserve = decimal.RequireFromString(cfg.Connector.GasReserve)
	}

	orderCfg := orders.Config{
		MaxAttempts:   cfg.Connector.Retry.MaxAttempts,
		BaseDelay:     cfg.Connector.Retry.BaseDelay,
		Multiplier:    cfg.Connector.Retry.BackoffMultiplier,
		MaxDelay:      cfg.Connector.Retry.MaxDelay,
		SubmitTimeout: cfg.Connector.Timeout,
		NativeSymbol:  cfg.Connector.NativeSymbol,
		GasReserve:    gasReserve,
	}

	runs := make([]engine.Run, 0, len(cfg.Strategies))
	for i, sc := range cfg.Strategies {
		st, err := buildStrategy(sc)
		if err != nil {
			return nil, fmt.Errorf("strategies[%d]: %w", i, err)
		}
		runs = append(runs, engine.Run{
			Wallet:   sc.Wallet,
			Strategy: st,
			Orders:   orderCfg,
		})
	}
	return runs, nil
}

func buildStrategy(sc config.StrategyConfig) (strategy.Strategy, error) {
	side := models.Side(sc.Side)

	switch sc.Type {
	case "simple_swap":
		return strategy.NewSimpleSwap(strategy.SimpleSwapConfig{
			Base:             sc.Base,
			Quote:            sc.Quote,
			Side:             side,
			Amount:           decimal.RequireFromString(sc.Amount),
			AmountIsBase:     sc.AmountIsBase,
			SlippageBps:      sc.SlippageBps,
			UseMEVProtection: sc.UseMEVProtection,
		}), nil
	case "dca":
		return strategy.NewDCA(strategy.DCAConfig{
			Base:             sc.Base,
			Quote:            sc.Quote,
			Side:             side,
			TotalAmount:      decimal.RequireFromString(sc.Amount),
			AmountIsBase:     sc.AmountIsBase,
			NumOrders:        sc.NumOrders,
			Interval:         sc.Interval,
			Distribution:     sc.Distribution,
			SlippageBps:      sc.SlippageBps,
			UseMEVProtection: sc.UseMEVProtection,
		}), nil
	case "batch_swap":
		return strategy.NewBatchSwap(strategy.BatchSwapConfig{
			Base:             sc.Base,
			Quote:            sc.Quote,
			Side:             side,
			TotalAmount:      decimal.RequireFromString(sc.Amount),
			AmountIsBase:     sc.AmountIsBase,
			MinPrice:         decimal.RequireFromString(sc.MinPrice),
			MaxPrice:         decimal.RequireFromString(sc.MaxPrice),
			NumLevels:        sc.NumLevels,
			Distribution:     sc.Distribution,
			SlippageBps:      sc.SlippageBps,
			UseMEVProtection: sc.UseMEVProtection,
		}), nil
	case "pure_mm":
		return strategy.NewPureMM(strategy.PureMMConfig{
			Base:             sc.Base,
			Quote:            sc.Quote,
			SpreadPct:        decimal.RequireFromString(sc.SpreadPct),
			LevelsPerSide:    sc.LevelsPerSide,
			OrderAmount:      decimal.RequireFromString(sc.OrderAmount),
			Refresh:          sc.Refresh,
			SlippageBps:      sc.SlippageBps,
			UseMEVProtection: sc.UseMEVProtection,
		}), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", sc.Type)
	}
}
