package strategies

import (
	"fmt"
	"math"

	"github.com/Zia-Rashid/Krusty-Krab/indicators"
	"github.com/Zia-Rashid/Krusty-Krab/market"
)

// CrossoverConfig configures a moving-average crossover.
type CrossoverConfig struct {
	Short int // default 20
	Long  int // default 50

	// Backtest switches the output from the terminal crossover signal to the
	// sign of the cumulative strategy return over the window.
	Backtest bool
}

// Crossover compares a short rolling mean against a long rolling mean.
type Crossover struct {
	short, long int
	backtest    bool
	name        string
}

func NewCrossover(cfg CrossoverConfig) *Crossover {
	if cfg.Short <= 0 {
		cfg.Short = 20
	}
	if cfg.Long <= 0 {
		cfg.Long = 50
	}
	name := fmt.Sprintf("CROSSOVER(%d,%d)", cfg.Short, cfg.Long)
	if cfg.Backtest {
		name = fmt.Sprintf("CROSSOVER_BT(%d,%d)", cfg.Short, cfg.Long)
	}
	return &Crossover{short: cfg.Short, long: cfg.Long, backtest: cfg.Backtest, name: name}
}

func (x *Crossover) Name() string { return x.name }

func (x *Crossover) Evaluate(symbol string, history market.Series, _ RiskContext) (Score, error) {
	if history.Len() < x.long {
		return Indeterminate, nil
	}

	closes := history.Closes()
	signals := CrossoverSignals(closes, x.short, x.long)

	if !x.backtest {
		return FromSignal(signals[len(signals)-1]), nil
	}

	returns := BacktestReturns(closes, signals)
	if len(returns) == 0 {
		return Indeterminate, nil
	}
	if returns[len(returns)-1] > 0 {
		return FromSignal(Buy), nil
	}
	return FromSignal(Sell), nil
}

// CrossoverSignals emits, per point, Buy where the short mean is above the
// long mean, Sell where it is below, and Hold on a tie or before both means
// are defined.
func CrossoverSignals(closes []float64, short, long int) []Signal {
	s := indicators.SMA(closes, short)
	l := indicators.SMA(closes, long)

	out := make([]Signal, len(closes))
	for i := range closes {
		switch {
		case math.IsNaN(s[i]) || math.IsNaN(l[i]):
			out[i] = Hold
		case s[i] > l[i]:
			out[i] = Buy
		case s[i] < l[i]:
			out[i] = Sell
		default:
			out[i] = Hold
		}
	}
	return out
}

// BacktestReturns is the cumulative sum of daily return times signal.
// The first point has no prior close and contributes nothing.
func BacktestReturns(closes []float64, signals []Signal) []float64 {
	n := len(closes)
	if len(signals) < n {
		n = len(signals)
	}

	pct := indicators.PctChange(closes[:n])
	out := make([]float64, n)
	cum := 0.0
	for i := 0; i < n; i++ {
		if !math.IsNaN(pct[i]) {
			cum += pct[i] * float64(signals[i])
		}
		out[i] = cum
	}
	return out
}
