package agent

import (
	"github.com/Zia-Rashid/Krusty-Krab/risk"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
)

// Reasons recorded with decisions and fills.
const (
	ReasonStopLoss     = "stop-loss"
	ReasonEnsembleSell = "ensemble-sell"
	ReasonTrailingStop = "trailing-stop"
	ReasonEnsembleBuy  = "ensemble-buy"
	ReasonRebuy        = "rebuy"
	ReasonManual       = "manual"
)

// Inputs is what the monitor knows about a held symbol in one cycle.
type Inputs struct {
	Price   float64
	LastLot float64
	Score   float64

	// DayOpen is zero when the session open is unknown, which disables
	// the trailing stop.
	DayOpen float64
}

type Thresholds struct {
	Buy              float64
	Sell             float64
	RiskThreshold    float64
	TrailingFraction float64
}

type Decision struct {
	Action strategies.Signal
	Reason string
}

// Decide applies the exit rules first: stop-loss against the most recent
// lot, an ensemble sell verdict, then the trailing stop against the day's
// open. Only when none fires does a buy verdict enter.
func Decide(in Inputs, th Thresholds) Decision {
	switch {
	case risk.StopLossHit(in.Price, in.LastLot, th.RiskThreshold):
		return Decision{Action: strategies.Sell, Reason: ReasonStopLoss}
	case in.Score <= th.Sell:
		return Decision{Action: strategies.Sell, Reason: ReasonEnsembleSell}
	case in.DayOpen > 0 && in.Price < risk.TrailingStopPrice(in.DayOpen, th.TrailingFraction):
		return Decision{Action: strategies.Sell, Reason: ReasonTrailingStop}
	case in.Score >= th.Buy:
		return Decision{Action: strategies.Buy, Reason: ReasonEnsembleBuy}
	}
	return Decision{Action: strategies.Hold}
}

func actionLabel(d Decision) string {
	switch d.Action {
	case strategies.Buy:
		return "buy"
	case strategies.Sell:
		return "sell"
	}
	return "hold"
}
