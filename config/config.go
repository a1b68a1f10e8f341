// Package config loads the agent configuration from YAML or JSON.
// Credentials never live in the file; they come from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/risk"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"gopkg.in/yaml.v3"
)

const (
	EnvKeyID     = "APCA_API_KEY_ID"
	EnvSecretKey = "APCA_API_SECRET_KEY"
)

// Config is the complete agent configuration.
type Config struct {
	Broker      BrokerConfig   `json:"broker" yaml:"broker"`
	Feed        FeedConfig     `json:"feed" yaml:"feed"`
	Forward     ForwardConfig  `json:"forward" yaml:"forward"`
	Strategy    StrategyConfig `json:"strategy" yaml:"strategy"`
	Risk        risk.Config    `json:"risk" yaml:"risk"`
	Agent       AgentConfig    `json:"agent" yaml:"agent"`
	Journal     JournalConfig  `json:"journal" yaml:"journal"`
	Log         LogConfig      `json:"log" yaml:"log"`
	MetricsAddr string         `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// BrokerConfig selects the brokerage: Type is "alpaca" or "paper", Env is
// "paper" or "live" and only applies to alpaca.
type BrokerConfig struct {
	Type      string  `json:"type" yaml:"type"`
	Env       string  `json:"env,omitempty" yaml:"env,omitempty"`
	BaseURL   string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	DataURL   string  `json:"data_url,omitempty" yaml:"data_url,omitempty"`
	PaperCash float64 `json:"paper_cash,omitempty" yaml:"paper_cash,omitempty"`
}

// FeedConfig configures the live bar stream.
type FeedConfig struct {
	URL            string `json:"url" yaml:"url"`
	MaxAttempts    int    `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay      string `json:"base_delay" yaml:"base_delay"`
	ReceiveTimeout string `json:"receive_timeout" yaml:"receive_timeout"`
	QueueCapacity  int    `json:"queue_capacity" yaml:"queue_capacity"`
}

// ForwardConfig configures the mirror of ingested frames.
type ForwardConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	RelayAddr string `json:"relay_addr,omitempty" yaml:"relay_addr,omitempty"`
}

// StrategyConfig names the ensemble members and decision thresholds.
type StrategyConfig struct {
	Weights       map[string]float64 `json:"weights" yaml:"weights"`
	BuyThreshold  float64            `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold float64            `json:"sell_threshold" yaml:"sell_threshold"`
	LookbackDays  int                `json:"lookback_days" yaml:"lookback_days"`

	// Absolute ATR bounds for the volatility gate. Zero means bounds
	// relative to the last close.
	VolatilityLow  float64 `json:"volatility_low,omitempty" yaml:"volatility_low,omitempty"`
	VolatilityHigh float64 `json:"volatility_high,omitempty" yaml:"volatility_high,omitempty"`
}

// Names returns the configured strategy names, sorted.
func (s StrategyConfig) Names() []string {
	out := make([]string, 0, len(s.Weights))
	for name := range s.Weights {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AgentConfig controls the orchestrator's activities.
type AgentConfig struct {
	Symbols         []string `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	MonitorInterval string   `json:"monitor_interval" yaml:"monitor_interval"`
	PurgeInterval   string   `json:"purge_interval" yaml:"purge_interval"`
	HealthInterval  string   `json:"health_interval" yaml:"health_interval"`
	RebuyInterval   string   `json:"rebuy_interval" yaml:"rebuy_interval"`
	RebuyWindow     string   `json:"rebuy_window" yaml:"rebuy_window"`
	RebuyDip        float64  `json:"rebuy_dip" yaml:"rebuy_dip"`
	PriceStaleness  string   `json:"price_staleness" yaml:"price_staleness"`
	OrderQty        float64  `json:"order_qty" yaml:"order_qty"`

	TradeWhenClosed       bool `json:"trade_when_closed" yaml:"trade_when_closed"`
	SeedLotsFromPositions bool `json:"seed_lots_from_positions" yaml:"seed_lots_from_positions"`
}

// JournalConfig selects where fills, account snapshots and the ledger go.
type JournalConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite", "csv" or "none"
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Durations are parsed from the string fields of FeedConfig and AgentConfig.
type Durations struct {
	BaseDelay       time.Duration
	ReceiveTimeout  time.Duration
	MonitorInterval time.Duration
	PurgeInterval   time.Duration
	HealthInterval  time.Duration
	RebuyInterval   time.Duration
	RebuyWindow     time.Duration
	PriceStaleness  time.Duration
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

// Durations parses every duration field.
func (c *Config) Durations() (Durations, error) {
	var (
		d   Durations
		err error
	)
	fields := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"feed.base_delay", c.Feed.BaseDelay, &d.BaseDelay},
		{"feed.receive_timeout", c.Feed.ReceiveTimeout, &d.ReceiveTimeout},
		{"agent.monitor_interval", c.Agent.MonitorInterval, &d.MonitorInterval},
		{"agent.purge_interval", c.Agent.PurgeInterval, &d.PurgeInterval},
		{"agent.health_interval", c.Agent.HealthInterval, &d.HealthInterval},
		{"agent.rebuy_interval", c.Agent.RebuyInterval, &d.RebuyInterval},
		{"agent.rebuy_window", c.Agent.RebuyWindow, &d.RebuyWindow},
		{"agent.price_staleness", c.Agent.PriceStaleness, &d.PriceStaleness},
	}
	for _, f := range fields {
		if *f.dst, err = parseDuration(f.name, f.src); err != nil {
			return Durations{}, err
		}
	}
	return d, nil
}

// Credentials reads the brokerage keys from the environment.
func Credentials() (keyID, secret string) {
	return os.Getenv(EnvKeyID), os.Getenv(EnvSecretKey)
}

// RequireCredentials fails when the selected brokerage needs keys that are
// not set.
func (c *Config) RequireCredentials() (keyID, secret string, err error) {
	keyID, secret = Credentials()
	if c.Broker.Type == "alpaca" && (keyID == "" || secret == "") {
		return "", "", fmt.Errorf("%s and %s must be set for broker.type alpaca", EnvKeyID, EnvSecretKey)
	}
	return keyID, secret, nil
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
// and validates it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	cfg.Strategy.Weights = nil

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	if cfg.Strategy.Weights == nil {
		cfg.Strategy.Weights = Default().Strategy.Weights
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Broker.Type {
	case "alpaca", "paper":
	default:
		return fmt.Errorf("broker.type must be 'alpaca' or 'paper'")
	}
	switch c.Broker.Env {
	case "", "paper", "live":
	default:
		return fmt.Errorf("broker.env must be 'paper' or 'live'")
	}
	if c.Broker.Type == "paper" && c.Broker.PaperCash <= 0 {
		return fmt.Errorf("broker.paper_cash must be positive for paper trading")
	}

	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.MaxAttempts <= 0 {
		return fmt.Errorf("feed.max_attempts must be positive")
	}
	if c.Feed.QueueCapacity <= 0 {
		return fmt.Errorf("feed.queue_capacity must be positive")
	}
	if c.Forward.Enabled && c.Forward.URL == "" {
		return fmt.Errorf("forward.url is required when forwarding is enabled")
	}

	if len(c.Strategy.Weights) == 0 {
		return fmt.Errorf("strategy.weights must name at least one strategy")
	}
	known := make(map[string]bool)
	for _, name := range strategies.Names() {
		known[name] = true
	}
	for _, name := range c.Strategy.Names() {
		if !known[name] {
			return fmt.Errorf("strategy.weights: unknown strategy %q", name)
		}
		if !(c.Strategy.Weights[name] > 0) {
			return fmt.Errorf("strategy.weights.%s must be positive", name)
		}
	}
	if c.Strategy.BuyThreshold <= c.Strategy.SellThreshold {
		return fmt.Errorf("strategy.buy_threshold must be greater than strategy.sell_threshold")
	}
	if c.Strategy.LookbackDays <= 0 {
		return fmt.Errorf("strategy.lookback_days must be positive")
	}
	if c.Strategy.VolatilityLow < 0 || c.Strategy.VolatilityHigh < c.Strategy.VolatilityLow {
		return fmt.Errorf("strategy volatility bounds must satisfy 0 <= low <= high")
	}

	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	if c.Agent.OrderQty <= 0 {
		return fmt.Errorf("agent.order_qty must be positive")
	}
	if c.Agent.RebuyDip < 0 || c.Agent.RebuyDip >= 1 {
		return fmt.Errorf("agent.rebuy_dip must be in [0,1)")
	}
	if _, err := c.Durations(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "none":
	case "sqlite", "csv":
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path is required for journal.type %s", c.Journal.Type)
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	return nil
}

// Default returns a paper-trading configuration with every field set.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Type:      "paper",
			Env:       "paper",
			PaperCash: 100000,
		},
		Feed: FeedConfig{
			URL:            "wss://stream.data.alpaca.markets/v2/iex",
			MaxAttempts:    5,
			BaseDelay:      "1s",
			ReceiveTimeout: "10s",
			QueueCapacity:  1000,
		},
		Forward: ForwardConfig{
			Enabled:   false,
			URL:       "ws://localhost:8080",
			RelayAddr: "localhost:8080",
		},
		Strategy: StrategyConfig{
			Weights: map[string]float64{
				"crossover":      1,
				"mean_reversion": 1,
				"macd":           1,
				"rsi":            1,
				"volatility":     1,
				"sizing":         1,
			},
			BuyThreshold:  0.25,
			SellThreshold: -0.25,
			LookbackDays:  120,
		},
		Risk: risk.DefaultConfig(),
		Agent: AgentConfig{
			MonitorInterval: "60s",
			PurgeInterval:   "5m",
			HealthInterval:  "30s",
			RebuyInterval:   "60s",
			RebuyWindow:     "72h",
			RebuyDip:        0.02,
			PriceStaleness:  "5m",
			OrderQty:        1,
		},
		Journal: JournalConfig{
			Type: "sqlite",
			Path: "./krusty.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		MetricsAddr: ":9090",
	}
}
