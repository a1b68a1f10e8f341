// Package ensemble combines weighted strategy scores into one decision score.
package ensemble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// ErrBadWeight is returned when registering a non-positive weight.
var ErrBadWeight = errors.New("strategy weight must be > 0")

// Member is one registered (strategy, weight) pair.
type Member struct {
	Strategy strategies.Strategy
	Weight   float64
}

// Contribution records how one member scored in one evaluation.
type Contribution struct {
	Name     string
	Weight   float64
	Score    strategies.Score
	Err      error
	Excluded bool
}

// Result is the outcome of one evaluation.
type Result struct {
	Symbol        string
	Score         float64
	WeightUsed    float64
	Contributions []Contribution
}

// Evaluator holds the strategy registration. Members are registered once at
// start-up; Evaluate only reads them and is safe for concurrent use.
type Evaluator struct {
	mu      sync.RWMutex
	members []Member
	log     *zap.Logger
}

func New(log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{log: log.Named("ensemble")}
}

// Register adds a strategy with the given weight.
func (e *Evaluator) Register(s strategies.Strategy, weight float64) error {
	if s == nil {
		return errors.New("nil strategy")
	}
	if !(weight > 0) {
		return fmt.Errorf("%w: %s=%v", ErrBadWeight, s.Name(), weight)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.members = append(e.members, Member{Strategy: s, Weight: weight})
	return nil
}

// Members returns a copy of the registration in order.
func (e *Evaluator) Members() []Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Member(nil), e.members...)
}

// Evaluate returns the weighted score for symbol. See EvaluateDetailed.
func (e *Evaluator) Evaluate(symbol string, history market.Series, rc strategies.RiskContext) float64 {
	return e.EvaluateDetailed(symbol, history, rc).Score
}

// EvaluateDetailed runs every member on the same history window and divides
// the weighted sum by the total weight of members that produced a valid
// score. Members that return an error, panic, or are indeterminate are
// excluded. With no valid member the score is 0.
func (e *Evaluator) EvaluateDetailed(symbol string, history market.Series, rc strategies.RiskContext) Result {
	members := e.Members()

	res := Result{Symbol: symbol, Contributions: make([]Contribution, 0, len(members))}
	sum := 0.0
	for _, m := range members {
		c := Contribution{Name: m.Strategy.Name(), Weight: m.Weight}
		c.Score, c.Err = safeEvaluate(m.Strategy, symbol, history, rc)

		switch {
		case c.Err != nil:
			c.Excluded = true
			e.log.Warn("strategy failed",
				zap.String("symbol", symbol),
				zap.String("strategy", c.Name),
				zap.Error(c.Err))
		case !c.Score.Valid():
			c.Excluded = true
		default:
			sum += m.Weight * c.Score.Value()
			res.WeightUsed += m.Weight
		}
		res.Contributions = append(res.Contributions, c)
	}

	if res.WeightUsed > 0 {
		res.Score = sum / res.WeightUsed
	}
	return res
}

func safeEvaluate(s strategies.Strategy, symbol string, history market.Series, rc strategies.RiskContext) (score strategies.Score, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		score, err = s.Evaluate(symbol, history, rc)
	})
	if r := pc.Recovered(); r != nil {
		return strategies.Indeterminate, fmt.Errorf("%s panicked: %w", s.Name(), r.AsError())
	}
	return score, err
}
