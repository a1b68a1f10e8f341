package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"go.uber.org/zap"
)

// Cycle runs one monitor pass: absorb queued bars, refresh positions and
// evaluate every held symbol that has lot history.
func (a *Agent) Cycle(ctx context.Context) {
	a.absorb()

	if err := a.refreshPositions(ctx); err != nil {
		a.log.Warn("refresh positions", zap.Error(err))
		return
	}
	if !a.marketOpen(ctx) {
		return
	}

	rc := a.riskContext(ctx)
	for _, sym := range a.Positions().Held() {
		if ctx.Err() != nil {
			return
		}
		a.evaluate(ctx, sym, rc)
	}
}

func (a *Agent) marketOpen(ctx context.Context) bool {
	if a.cfg.TradeWhenClosed {
		return true
	}
	open, err := a.broker.IsMarketOpen(ctx)
	if err != nil {
		a.log.Warn("market clock", zap.Error(err))
		return false
	}
	if !open {
		a.log.Debug("market closed")
	}
	return open
}

// riskContext gathers the portfolio figures handed to every evaluation
// in this cycle.
func (a *Agent) riskContext(ctx context.Context) strategies.RiskContext {
	rc := strategies.RiskContext{Positions: a.risk}
	v, err := a.broker.GetAccountValue(ctx)
	if err != nil {
		a.log.Warn("account value", zap.Error(err))
	} else {
		rc.PortfolioValue = v.InexactFloat64()
		a.metrics.accountValue.Set(rc.PortfolioValue)
	}
	rc.AvailableCash = a.risk.AvailableFunds(ctx)
	return rc
}

func (a *Agent) evaluate(ctx context.Context, sym string, rc strategies.RiskContext) {
	lastLot, ok := a.lots.LastLot(sym)
	if !ok {
		a.log.Warn("out-of-band position without lot history, skipping", zap.String("symbol", sym))
		a.metrics.decisions.WithLabelValues("skip").Inc()
		return
	}

	price, err := a.currentPrice(ctx, sym)
	if err != nil {
		a.log.Warn("current price", zap.String("symbol", sym), zap.Error(err))
		return
	}
	history, err := a.history(ctx, sym)
	if err != nil {
		a.log.Warn("history", zap.String("symbol", sym), zap.Error(err))
		return
	}

	res := a.scorer.EvaluateDetailed(sym, history, rc)
	in := Inputs{
		Price:   price,
		LastLot: lastLot.Price,
		Score:   res.Score,
		DayOpen: a.dayOpen(sym, history),
	}
	d := Decide(in, a.thresholds())
	a.metrics.decisions.WithLabelValues(actionLabel(d)).Inc()

	a.log.Debug("evaluated",
		zap.String("symbol", sym),
		zap.Float64("price", price),
		zap.Float64("last_lot", lastLot.Price),
		zap.Float64("score", res.Score),
		zap.Float64("weight_used", res.WeightUsed),
		zap.Stringer("action", d.Action),
		zap.String("reason", d.Reason))

	if d.Action == strategies.Hold {
		return
	}
	if _, err := a.trade(ctx, d.Action, sym, d.Reason); err != nil {
		a.log.Error("trade failed",
			zap.String("symbol", sym),
			zap.Stringer("action", d.Action),
			zap.String("reason", d.Reason),
			zap.Error(err))
	}
}

func (a *Agent) thresholds() Thresholds {
	rc := a.risk.Config()
	return Thresholds{
		Buy:              a.cfg.BuyThreshold,
		Sell:             a.cfg.SellThreshold,
		RiskThreshold:    rc.RiskThreshold,
		TrailingFraction: rc.TrailingFraction,
	}
}

// currentPrice prefers a fresh live bar, then the brokerage's latest bar,
// then the price on the cached position. Live bars are ignored while
// polling.
func (a *Agent) currentPrice(ctx context.Context, sym string) (float64, error) {
	if !a.Polling() {
		if b, ok := a.bars.Latest(sym); ok && a.now().Sub(b.Time) <= a.cfg.PriceStaleness && b.Close > 0 {
			return b.Close, nil
		}
	}

	b, err := a.broker.GetLatestBar(ctx, sym)
	if err == nil && b.Close > 0 {
		return b.Close, nil
	}
	if p, ok := a.Positions()[sym]; ok && p.Price > 0 {
		return p.Price, nil
	}
	if err == nil {
		err = errors.New("no price")
	}
	return 0, fmt.Errorf("price %s: %w", sym, err)
}

func (a *Agent) history(ctx context.Context, sym string) (market.Series, error) {
	end := a.now()
	start := end.AddDate(0, 0, -a.cfg.LookbackDays)
	return a.broker.GetHistoricalBars(ctx, sym, start, end)
}

// dayOpen is the open of today's historical bar. Live bars only fill in
// when history has no bar for today yet, since the first live bar seen
// after a mid-session start is not the session open.
func (a *Agent) dayOpen(sym string, history market.Series) float64 {
	now := a.now()
	if b, ok := history.Last(); ok && sameDay(b, now) && b.Open > 0 {
		return b.Open
	}
	if o, ok := a.bars.DayOpen(sym, now); ok {
		return o
	}
	return 0
}

func sameDay(b market.Bar, t time.Time) bool {
	y1, m1, d1 := b.Time.UTC().Date()
	y2, m2, d2 := t.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
