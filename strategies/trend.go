package strategies

import (
	"fmt"

	"github.com/Zia-Rashid/Krusty-Krab/indicators"
	"github.com/Zia-Rashid/Krusty-Krab/market"
)

type TrendConfig struct {
	Period    int     // default 14
	Threshold float64 // minimum ADX for a trend, default 20
}

// Trend follows the dominant directional index once ADX shows a trend:
// +1 when +DI leads, -1 when -DI leads, 0 while ADX is below the
// threshold.
type Trend struct {
	cfg TrendConfig
}

func NewTrend(cfg TrendConfig) *Trend {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 20
	}
	return &Trend{cfg: cfg}
}

func (t *Trend) Name() string {
	return fmt.Sprintf("ADX(%d,%.0f)", t.cfg.Period, t.cfg.Threshold)
}

func (t *Trend) Evaluate(symbol string, history market.Series, _ RiskContext) (Score, error) {
	if history.Len() < 2*t.cfg.Period {
		return Indeterminate, nil
	}

	dmi := indicators.ADX(history.Highs(), history.Lows(), history.Closes(), t.cfg.Period)
	adx, ok := indicators.Last(dmi.ADX)
	if !ok {
		return Indeterminate, nil
	}
	pdi, _ := indicators.Last(dmi.PlusDI)
	mdi, _ := indicators.Last(dmi.MinusDI)

	switch {
	case adx < t.cfg.Threshold:
		return FromSignal(Hold), nil
	case pdi > mdi:
		return FromSignal(Buy), nil
	case mdi > pdi:
		return FromSignal(Sell), nil
	}
	return FromSignal(Hold), nil
}
