package agent

import (
	"context"

	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"go.uber.org/zap"
)

func (a *Agent) rebuyLoop(ctx context.Context) error {
	for a.alive(ctx) {
		if err := a.sleep(ctx, a.cfg.RebuyInterval); err != nil {
			return nil
		}
		a.CheckRebuys(ctx)
	}
	return nil
}

// CheckRebuys walks the sold-book. Entries older than the rebuy window are
// forgotten. A flat symbol is bought back when its price has fallen by the
// rebuy dip below the exit price and the ensemble does not call a sell.
func (a *Agent) CheckRebuys(ctx context.Context) {
	entries := a.lots.SoldEntries()
	if len(entries) == 0 {
		return
	}

	if err := a.refreshPositions(ctx); err != nil {
		a.log.Warn("rebuy positions", zap.Error(err))
		return
	}
	held := a.Positions()

	now := a.now()
	var (
		rc    strategies.RiskContext
		ready bool
	)
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if now.Sub(e.ExitTime) > a.cfg.RebuyWindow {
			a.expire(e.Symbol)
			continue
		}
		if held.Qty(e.Symbol) > 0 {
			a.log.Debug("rebuy skipped, position still held", zap.String("symbol", e.Symbol))
			continue
		}

		price, err := a.currentPrice(ctx, e.Symbol)
		if err != nil {
			a.log.Warn("rebuy price", zap.String("symbol", e.Symbol), zap.Error(err))
			continue
		}
		target := e.ExitPrice * (1 - a.cfg.RebuyDip)
		if price > target {
			continue
		}

		if !ready {
			if !a.marketOpen(ctx) {
				return
			}
			rc = a.riskContext(ctx)
			ready = true
		}
		history, err := a.history(ctx, e.Symbol)
		if err != nil {
			a.log.Warn("rebuy history", zap.String("symbol", e.Symbol), zap.Error(err))
			continue
		}
		res := a.scorer.EvaluateDetailed(e.Symbol, history, rc)
		if res.Score <= a.cfg.SellThreshold {
			a.log.Debug("rebuy vetoed by ensemble", zap.String("symbol", e.Symbol), zap.Float64("score", res.Score))
			continue
		}

		a.log.Info("rebuy triggered",
			zap.String("symbol", e.Symbol),
			zap.Float64("exit", e.ExitPrice),
			zap.Float64("price", price),
			zap.Float64("score", res.Score))
		if _, err := a.trade(ctx, strategies.Buy, e.Symbol, ReasonRebuy); err != nil {
			a.log.Error("rebuy failed", zap.String("symbol", e.Symbol), zap.Error(err))
		}
	}
}

func (a *Agent) expire(symbol string) {
	a.tradeMu.Lock()
	defer a.tradeMu.Unlock()
	a.lots.ForgetSold(symbol)
	a.persist()
	a.log.Info("rebuy window expired", zap.String("symbol", symbol))
}
