package strategies

import (
	"fmt"

	"github.com/Zia-Rashid/Krusty-Krab/indicators"
	"github.com/Zia-Rashid/Krusty-Krab/market"
)

// RSIConfig configures the RSI strategy.
type RSIConfig struct {
	Period     int     // default 14
	Oversold   float64 // default 30
	Overbought float64 // default 70
}

// RSI buys when oversold and sells when overbought.
type RSI struct {
	period               int
	oversold, overbought float64
}

func NewRSI(cfg RSIConfig) *RSI {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = 30
	}
	if cfg.Overbought <= 0 {
		cfg.Overbought = 70
	}
	return &RSI{period: cfg.Period, oversold: cfg.Oversold, overbought: cfg.Overbought}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }

func (r *RSI) Evaluate(symbol string, history market.Series, _ RiskContext) (Score, error) {
	if history.Len() <= r.period {
		return Indeterminate, nil
	}

	v, ok := indicators.Last(indicators.RSI(history.Closes(), r.period))
	if !ok {
		// flat window: no gains, no losses
		return FromSignal(Hold), nil
	}

	switch {
	case v < r.oversold:
		return FromSignal(Buy), nil
	case v > r.overbought:
		return FromSignal(Sell), nil
	default:
		return FromSignal(Hold), nil
	}
}
