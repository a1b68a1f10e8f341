// Package risk values positions, computes available funds and produces the
// position-sizing veto and stop prices consulted by the agent. Nothing in
// this package places orders.
package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrMissingData is returned when a symbol has no position or no lots.
var ErrMissingData = errors.New("missing position data")

const (
	DefaultRiskThreshold    = 0.05
	DefaultMaxFraction      = 0.10
	DefaultTrailingFraction = 0.95
)

// Config holds the risk parameters. A zero RiskThreshold is kept and puts
// the stop at the entry price; the other zero values take the defaults above.
type Config struct {
	RiskThreshold    float64 `yaml:"risk_threshold" json:"risk_threshold"`
	MaxFraction      float64 `yaml:"max_fraction" json:"max_fraction"`
	TrailingFraction float64 `yaml:"trailing_fraction" json:"trailing_fraction"`
}

// DefaultConfig returns the default risk parameters.
func DefaultConfig() Config {
	return Config{
		RiskThreshold:    DefaultRiskThreshold,
		MaxFraction:      DefaultMaxFraction,
		TrailingFraction: DefaultTrailingFraction,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxFraction <= 0 {
		c.MaxFraction = DefaultMaxFraction
	}
	if c.TrailingFraction <= 0 {
		c.TrailingFraction = DefaultTrailingFraction
	}
	return c
}

// Validate rejects out-of-range parameters.
func (c Config) Validate() error {
	if c.RiskThreshold < 0 || c.RiskThreshold > 1 {
		return fmt.Errorf("risk_threshold must be in [0,1], got %v", c.RiskThreshold)
	}
	if c.MaxFraction < 0 || c.MaxFraction > 1 {
		return fmt.Errorf("max_fraction must be in [0,1], got %v", c.MaxFraction)
	}
	if c.TrailingFraction < 0 || c.TrailingFraction > 1 {
		return fmt.Errorf("trailing_fraction must be in [0,1], got %v", c.TrailingFraction)
	}
	return nil
}

// LotBook is the read side of the lot ledger.
type LotBook interface {
	AveragePrice(symbol string) (float64, bool)
}

// PositionSource returns the current cached positions.
type PositionSource interface {
	Positions() market.Positions
}

// AccountValuer reports total account value.
type AccountValuer interface {
	GetAccountValue(ctx context.Context) (decimal.Decimal, error)
}

type Manager struct {
	cfg       Config
	lots      LotBook
	positions PositionSource
	account   AccountValuer
	log       *zap.Logger
}

func NewManager(cfg Config, lots LotBook, positions PositionSource, account AccountValuer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg.withDefaults(),
		lots:      lots,
		positions: positions,
		account:   account,
		log:       log.Named("risk"),
	}
}

func (m *Manager) Config() Config { return m.cfg }

// PositionValue is the average lot price times the held quantity.
func (m *Manager) PositionValue(symbol string) (float64, error) {
	qty := m.positions.Positions().Qty(symbol)
	if qty <= 0 {
		return 0, fmt.Errorf("%s: no position: %w", symbol, ErrMissingData)
	}
	avg, ok := m.lots.AveragePrice(symbol)
	if !ok {
		return 0, fmt.Errorf("%s: no lots: %w", symbol, ErrMissingData)
	}
	return avg * qty, nil
}

// AvailableFunds returns account value minus the value of every held
// position. Any failure yields 0.
func (m *Manager) AvailableFunds(ctx context.Context) float64 {
	total, err := m.account.GetAccountValue(ctx)
	if err != nil {
		m.log.Warn("available funds: account value", zap.Error(err))
		return 0
	}

	invested := 0.0
	for _, sym := range m.positions.Positions().Held() {
		v, err := m.PositionValue(sym)
		if err != nil {
			m.log.Warn("available funds: position value", zap.String("symbol", sym), zap.Error(err))
			return 0
		}
		invested += v
	}
	return total.InexactFloat64() - invested
}

// StopLoss returns the stop-loss price for entry at the configured threshold.
func (m *Manager) StopLoss(entry float64) float64 {
	return StopLossPrice(entry, m.cfg.RiskThreshold)
}

// TrailingStop returns the trailing-stop trigger for a reference price.
func (m *Manager) TrailingStop(reference float64) float64 {
	return TrailingStopPrice(reference, m.cfg.TrailingFraction)
}
