package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Swapflow   SwapflowConfig   `yaml:"swapflow"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Connector  ConnectorConfig  `yaml:"connector"`
	Wallets    []WalletConfig   `yaml:"wallets"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

type SwapflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	ChatID  string `yaml:"chat_id"`
	Token   string `yaml:"-"` // resolved from TELEGRAM_BOT_TOKEN
}

type ConnectorConfig struct {
	RPCURL       string            `yaml:"rpc_url"`
	ChainID      int64             `yaml:"chain_id"`
	Router       string            `yaml:"router"`
	ExplorerURL  string            `yaml:"explorer_url"`
	Timeout      time.Duration     `yaml:"timeout"`
	NativeSymbol string            `yaml:"native_symbol"`
	GasReserve   string            `yaml:"gas_reserve"`
	Tokens       map[string]string `yaml:"tokens"`
	RateLimit    RateLimitConfig   `yaml:"rate_limit"`
	Retry        RetryConfig       `yaml:"retry"`
	Health       HealthConfig      `yaml:"health"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `yaml:"max_delay"`
}

type HealthConfig struct {
	DegradedThreshold int `yaml:"degraded_threshold"`
	DownThreshold     int `yaml:"down_threshold"`
}

type WalletConfig struct {
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	PrivateKey string `yaml:"-"` // resolved from the environment, never from yaml
}

// StrategyConfig is the union of all strategy settings; Type selects which
// fields apply. Amounts stay strings in yaml and are parsed during
// validation so precision never passes through a float.
type StrategyConfig struct {
	Wallet string `yaml:"wallet"`
	Type   string `yaml:"type"`
	Base   string `yaml:"base"`
	Quote  string `yaml:"quote"`
	Side   string `yaml:"side"`

	Amount           string `yaml:"amount"`
	AmountIsBase     bool   `yaml:"amount_is_base"`
	SlippageBps      int    `yaml:"slippage_bps"`
	UseMEVProtection bool   `yaml:"use_mev_protection"`

	// dca
	NumOrders    int           `yaml:"num_orders"`
	Interval     time.Duration `yaml:"interval"`
	Distribution string        `yaml:"distribution"`

	// batch_swap
	NumLevels int    `yaml:"num_levels"`
	MinPrice  string `yaml:"min_price"`
	MaxPrice  string `yaml:"max_price"`

	// pure_mm
	SpreadPct     string        `yaml:"spread_pct"`
	LevelsPerSide int           `yaml:"levels_per_side"`
	Refresh       time.Duration `yaml:"refresh"`
	OrderAmount   string        `yaml:"order_amount"`
}

var strategyTypes = map[string]bool{
	"simple_swap": true,
	"pure_mm":     true,
	"batch_swap":  true,
	"dca":         true,
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, "config/config.yml", map[string]string{
		environmentProduction: "config/config.production.yml",
		environmentStaging:    "config/config.staging.yml",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Connector: ConnectorConfig{
			Timeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         5,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         time.Second,
				BackoffMultiplier: 2,
				MaxDelay:          30 * time.Second,
			},
			Health: HealthConfig{
				DegradedThreshold: 3,
				DownThreshold:     10,
			},
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override connector settings from environment variables if available
	if v := os.Getenv("SWAPFLOW_RPC_URL"); v != "" {
		config.Connector.RPCURL = strings.TrimSpace(v)
	}
	if config.Telegram.Enabled {
		config.Telegram.Token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}
	if err := resolveWalletKeys(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Swapflow.Name == "" {
		return fmt.Errorf("swapflow.name is required")
	}
	if cfg.Swapflow.Version == "" {
		return fmt.Errorf("swapflow.version is required")
	}

	if cfg.Connector.RPCURL == "" {
		return fmt.Errorf("connector.rpc_url is required")
	}
	if cfg.Connector.ChainID <= 0 {
		return fmt.Errorf("connector.chain_id must be greater than 0")
	}
	if cfg.Connector.Router == "" {
		return fmt.Errorf("connector.router is required")
	}
	if len(cfg.Connector.Tokens) == 0 {
		return fmt.Errorf("connector.tokens must list at least one token")
	}
	if cfg.Connector.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("connector.retry.max_attempts must be greater than 0")
	}
	if cfg.Connector.Retry.BackoffMultiplier <= 1 {
		return fmt.Errorf("connector.retry.backoff_multiplier must be greater than 1")
	}
	if cfg.Connector.Health.DegradedThreshold <= 0 {
		return fmt.Errorf("connector.health.degraded_threshold must be greater than 0")
	}
	if cfg.Connector.Health.DownThreshold <= cfg.Connector.Health.DegradedThreshold {
		return fmt.Errorf("connector.health.down_threshold must exceed the degraded threshold")
	}
	if cfg.Connector.GasReserve != "" {
		if _, err := decimal.NewFromString(cfg.Connector.GasReserve); err != nil {
			return fmt.Errorf("connector.gas_reserve is not a valid amount: %w", err)
		}
	}

	if cfg.Telegram.Enabled {
		if cfg.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if cfg.Telegram.Token == "" && IsProductionLike(AppEnvironment()) {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when telegram is enabled")
		}
	}

	if len(cfg.Wallets) == 0 {
		return fmt.Errorf("wallets must list at least one wallet")
	}
	walletNames := make(map[string]bool, len(cfg.Wallets))
	for i, w := range cfg.Wallets {
		if w.Name == "" {
			return fmt.Errorf("wallets[%d].name is required", i)
		}
		if walletNames[w.Name] {
			return fmt.Errorf("duplicate wallet name %q", w.Name)
		}
		walletNames[w.Name] = true
	}

	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("strategies must list at least one strategy")
	}
	for i, s := range cfg.Strategies {
		if err := validateStrategy(&cfg.Strategies[i], walletNames, cfg.Connector.Tokens); err != nil {
			return fmt.Errorf("strategies[%d]: %w", i, err)
		}
		_ = s
	}

	return nil
}

func validateStrategy(s *StrategyConfig, wallets map[string]bool, tokens map[string]string) error {
	if !strategyTypes[s.Type] {
		return fmt.Errorf("unknown strategy type %q", s.Type)
	}
	if !wallets[s.Wallet] {
		return fmt.Errorf("wallet %q is not configured", s.Wallet)
	}
	if s.Base == "" || s.Quote == "" {
		return fmt.Errorf("base and quote are required")
	}
	if _, ok := tokens[s.Base]; !ok {
		return fmt.Errorf("base token %q is not in connector.tokens", s.Base)
	}
	if _, ok := tokens[s.Quote]; !ok {
		return fmt.Errorf("quote token %q is not in connector.tokens", s.Quote)
	}
	if s.SlippageBps < 0 || s.SlippageBps >= 10000 {
		return fmt.Errorf("slippage_bps must be in [0, 10000)")
	}

	switch s.Type {
	case "simple_swap":
		if err := requireAmount(s.Amount, "amount"); err != nil {
			return err
		}
		if err := requireSide(s.Side); err != nil {
			return err
		}
	case "dca":
		if err := requireAmount(s.Amount, "amount"); err != nil {
			return err
		}
		if err := requireSide(s.Side); err != nil {
			return err
		}
		if s.NumOrders <= 0 {
			return fmt.Errorf("num_orders must be greater than 0")
		}
		if s.Interval <= 0 {
			return fmt.Errorf("interval must be greater than 0")
		}
		if s.Distribution != "" && s.Distribution != "uniform" && s.Distribution != "random" {
			return fmt.Errorf("distribution must be uniform or random")
		}
	case "batch_swap":
		if err := requireAmount(s.Amount, "amount"); err != nil {
			return err
		}
		if err := requireSide(s.Side); err != nil {
			return err
		}
		if s.NumLevels <= 0 {
			return fmt.Errorf("num_levels must be greater than 0")
		}
		min, err := decimal.NewFromString(s.MinPrice)
		if err != nil {
			return fmt.Errorf("min_price is not a valid price: %w", err)
		}
		max, err := decimal.NewFromString(s.MaxPrice)
		if err != nil {
			return fmt.Errorf("max_price is not a valid price: %w", err)
		}
		if min.Sign() <= 0 || max.LessThan(min) {
			return fmt.Errorf("price range [%s, %s] is invalid", s.MinPrice, s.MaxPrice)
		}
		if s.Distribution != "" && s.Distribution != "uniform" && s.Distribution != "bell" {
			return fmt.Errorf("distribution must be uniform or bell")
		}
	case "pure_mm":
		if err := requireAmount(s.OrderAmount, "order_amount"); err != nil {
			return err
		}
		spread, err := decimal.NewFromString(s.SpreadPct)
		if err != nil {
			return fmt.Errorf("spread_pct is not a valid percentage: %w", err)
		}
		if spread.Sign() <= 0 {
			return fmt.Errorf("spread_pct must be greater than 0")
		}
		if s.LevelsPerSide <= 0 {
			return fmt.Errorf("levels_per_side must be greater than 0")
		}
		if s.Refresh <= 0 {
			return fmt.Errorf("refresh must be greater than 0")
		}
	}

	return nil
}

func requireAmount(v, field string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("%s is not a valid amount: %w", field, err)
	}
	if d.Sign() <= 0 {
		return fmt.Errorf("%s must be greater than 0", field)
	}
	return nil
}

func requireSide(side string) error {
	if side != "buy" && side != "sell" {
		return fmt.Errorf("side must be buy or sell")
	}
	return nil
}
