package strategies

import (
	"fmt"

	"github.com/Zia-Rashid/Krusty-Krab/indicators"
	"github.com/Zia-Rashid/Krusty-Krab/market"
)

// MACDConfig configures the MACD strategy.
type MACDConfig struct {
	Fast   int // default 12
	Slow   int // default 26
	Signal int // default 9
}

// MACD buys while the MACD line is above its signal line and sells while it
// is below.
type MACD struct {
	fast, slow, signal int
}

func NewMACD(cfg MACDConfig) *MACD {
	if cfg.Fast <= 0 {
		cfg.Fast = 12
	}
	if cfg.Slow <= 0 {
		cfg.Slow = 26
	}
	if cfg.Signal <= 0 {
		cfg.Signal = 9
	}
	return &MACD{fast: cfg.Fast, slow: cfg.Slow, signal: cfg.Signal}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", m.fast, m.slow, m.signal)
}

func (m *MACD) Evaluate(symbol string, history market.Series, _ RiskContext) (Score, error) {
	if history.Len() < m.slow {
		return Indeterminate, nil
	}

	line, signal := MACDLines(history.Closes(), m.fast, m.slow, m.signal)
	l, okL := indicators.Last(line)
	s, okS := indicators.Last(signal)
	if !okL || !okS {
		return Indeterminate, nil
	}

	switch {
	case l > s:
		return FromSignal(Buy), nil
	case l < s:
		return FromSignal(Sell), nil
	default:
		return FromSignal(Hold), nil
	}
}

// MACDLines returns the MACD line (fast EWM minus slow EWM) and its signal line.
func MACDLines(closes []float64, fast, slow, signal int) ([]float64, []float64) {
	f := indicators.EWM(closes, fast)
	s := indicators.EWM(closes, slow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = f[i] - s[i]
	}
	return line, indicators.EWM(line, signal)
}
