package strategies

import (
	"fmt"

	"github.com/Zia-Rashid/Krusty-Krab/indicators"
	"github.com/Zia-Rashid/Krusty-Krab/market"
)

// VolatilityConfig configures the ATR risk gate.
//
// When Low and High are both set they are used as absolute ATR bounds.
// Otherwise the bounds are LowFraction and HighFraction of the last close.
type VolatilityConfig struct {
	Period int // default 14

	Low  float64
	High float64

	LowFraction  float64 // default 0.005
	HighFraction float64 // default 0.05
}

// VolatilityGate is a risk filter, not a directional signal: +1 while ATR
// sits inside the acceptable range, -1 outside it.
type VolatilityGate struct {
	cfg VolatilityConfig
}

func NewVolatilityGate(cfg VolatilityConfig) *VolatilityGate {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.LowFraction <= 0 {
		cfg.LowFraction = 0.005
	}
	if cfg.HighFraction <= 0 {
		cfg.HighFraction = 0.05
	}
	return &VolatilityGate{cfg: cfg}
}

func (v *VolatilityGate) Name() string { return fmt.Sprintf("ATR_GATE(%d)", v.cfg.Period) }

// Bounds returns the acceptable ATR range for a given last close.
func (v *VolatilityGate) Bounds(lastClose float64) (float64, float64) {
	if v.cfg.Low > 0 && v.cfg.High > 0 {
		return v.cfg.Low, v.cfg.High
	}
	return lastClose * v.cfg.LowFraction, lastClose * v.cfg.HighFraction
}

func (v *VolatilityGate) Evaluate(symbol string, history market.Series, _ RiskContext) (Score, error) {
	if history.Len() < v.cfg.Period {
		return Indeterminate, nil
	}

	closes := history.Closes()
	atr, ok := indicators.Last(indicators.ATR(history.Highs(), history.Lows(), closes, v.cfg.Period))
	if !ok {
		return Indeterminate, nil
	}

	lo, hi := v.Bounds(closes[len(closes)-1])
	if lo <= atr && atr <= hi {
		return FromSignal(Buy), nil
	}
	return FromSignal(Sell), nil
}
