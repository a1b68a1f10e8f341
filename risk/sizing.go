package risk

import (
	"fmt"

	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
)

// PositionSizingVeto returns Sell when the position is larger than
// maxFraction of the portfolio or when cash cannot cover it, else Hold.
func PositionSizingVeto(positionValue, portfolioValue, availableCash, maxFraction float64) strategies.Signal {
	if maxFraction <= 0 {
		maxFraction = DefaultMaxFraction
	}
	if positionValue > maxFraction*portfolioValue || availableCash < positionValue {
		return strategies.Sell
	}
	return strategies.Hold
}

// SizingStrategy registers the sizing veto as an ensemble member. It reads
// portfolio figures from the risk context of each evaluation.
type SizingStrategy struct {
	MaxFraction float64
}

func (s SizingStrategy) Name() string {
	return fmt.Sprintf("SIZING(%.2f)", s.maxFraction())
}

func (s SizingStrategy) maxFraction() float64 {
	if s.MaxFraction <= 0 {
		return DefaultMaxFraction
	}
	return s.MaxFraction
}

func (s SizingStrategy) Evaluate(symbol string, _ market.Series, rc strategies.RiskContext) (strategies.Score, error) {
	if rc.Positions == nil {
		return strategies.Indeterminate, fmt.Errorf("%s: no position valuer: %w", symbol, ErrMissingData)
	}
	v, err := rc.Positions.PositionValue(symbol)
	if err != nil {
		return strategies.Indeterminate, err
	}
	return strategies.FromSignal(PositionSizingVeto(v, rc.PortfolioValue, rc.AvailableCash, s.maxFraction())), nil
}

func init() {
	strategies.Register("sizing", func() strategies.Strategy { return SizingStrategy{} })
}
