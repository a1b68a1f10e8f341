// Package strategies holds the signal library: pure functions that map a
// price-history window to a buy/sell pressure score.
package strategies

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Zia-Rashid/Krusty-Krab/market"
)

// ErrUnknownStrategy is returned by New for names that were never registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Signal is a discrete directional verdict.
type Signal int

const (
	Sell Signal = -1
	Hold Signal = 0
	Buy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Score is one strategy's output for one evaluation. An indeterminate score
// carries no value and is left out of the ensemble average entirely.
type Score struct {
	value float64
	valid bool
}

// Indeterminate marks "not enough information to say anything".
var Indeterminate = Score{}

// Determinate wraps a continuous score.
func Determinate(v float64) Score { return Score{value: v, valid: true} }

// FromSignal wraps a discrete signal.
func FromSignal(s Signal) Score { return Score{value: float64(s), valid: true} }

func (s Score) Valid() bool    { return s.valid }
func (s Score) Value() float64 { return s.value }

func (s Score) String() string {
	if !s.valid {
		return "indeterminate"
	}
	return fmt.Sprintf("%.4f", s.value)
}

// PositionValuer reports the cost-basis value of a held position.
type PositionValuer interface {
	PositionValue(symbol string) (float64, error)
}

// RiskContext is passed on every evaluation so that risk-aware strategies
// see current portfolio figures rather than values captured at start-up.
type RiskContext struct {
	PortfolioValue float64
	AvailableCash  float64
	Positions      PositionValuer
}

// Strategy scores a symbol from its history. Implementations must not
// modify history.
type Strategy interface {
	Name() string
	Evaluate(symbol string, history market.Series, rc RiskContext) (Score, error)
}

// Func adapts a plain function to the Strategy interface.
type Func struct {
	ID string
	Fn func(symbol string, history market.Series, rc RiskContext) (Score, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Evaluate(symbol string, history market.Series, rc RiskContext) (Score, error) {
	return f.Fn(symbol, history, rc)
}

// Factory builds a strategy with default parameters.
type Factory func() Strategy

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes a strategy constructible by name. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New builds the strategy registered under name.
func New(name string) (Strategy, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return f(), nil
}

// Names lists registered strategy names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("crossover", func() Strategy { return NewCrossover(CrossoverConfig{}) })
	Register("crossover_backtest", func() Strategy { return NewCrossover(CrossoverConfig{Backtest: true}) })
	Register("mean_reversion", func() Strategy { return NewMeanReversion(MeanReversionConfig{}) })
	Register("macd", func() Strategy { return NewMACD(MACDConfig{}) })
	Register("rsi", func() Strategy { return NewRSI(RSIConfig{}) })
	Register("volatility", func() Strategy { return NewVolatilityGate(VolatilityConfig{}) })
	Register("adx", func() Strategy { return NewTrend(TrendConfig{}) })
}
