package strategies

import (
	"fmt"
	"math"

	"github.com/Zia-Rashid/Krusty-Krab/indicators"
	"github.com/Zia-Rashid/Krusty-Krab/market"
)

// MeanReversionConfig configures Bollinger-band mean reversion.
type MeanReversionConfig struct {
	Window int     // default 20
	Width  float64 // band width in standard deviations, default 2
}

// MeanReversion sells above the upper band and buys below the lower band.
type MeanReversion struct {
	window int
	width  float64
}

func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	if cfg.Window <= 1 {
		cfg.Window = 20
	}
	if cfg.Width <= 0 {
		cfg.Width = 2
	}
	return &MeanReversion{window: cfg.Window, width: cfg.Width}
}

func (m *MeanReversion) Name() string {
	return fmt.Sprintf("MEAN_REVERSION(%d,%.1f)", m.window, m.width)
}

func (m *MeanReversion) Evaluate(symbol string, history market.Series, _ RiskContext) (Score, error) {
	if history.Len() < m.window {
		return Indeterminate, nil
	}

	closes := history.Closes()
	mean, okMean := indicators.Last(indicators.SMA(closes, m.window))
	std, okStd := indicators.Last(indicators.RollingStd(closes, m.window))
	if !okMean || !okStd || math.IsNaN(std) {
		return Indeterminate, nil
	}

	last := closes[len(closes)-1]
	upper := mean + m.width*std
	lower := mean - m.width*std

	switch {
	case last > upper:
		return FromSignal(Sell), nil
	case last < lower:
		return FromSignal(Buy), nil
	default:
		return FromSignal(Hold), nil
	}
}
