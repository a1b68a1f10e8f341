package agent

import (
	"context"
	"fmt"

	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/journal"
	"github.com/Zia-Rashid/Krusty-Krab/ledger"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"go.uber.org/zap"
)

// ExecuteTrade places a buy or sell for symbol and records the lot. Trades
// from every activity are serialized.
func (a *Agent) ExecuteTrade(ctx context.Context, signal strategies.Signal, symbol string) (broker.OrderResult, error) {
	return a.trade(ctx, signal, symbol, ReasonManual)
}

// trade holds the trade lock across the position re-read, the order and
// the ledger update. The ledger is only touched once the brokerage has
// accepted the order.
func (a *Agent) trade(ctx context.Context, signal strategies.Signal, symbol, reason string) (broker.OrderResult, error) {
	var side broker.Side
	switch signal {
	case strategies.Buy:
		side = broker.Buy
	case strategies.Sell:
		side = broker.Sell
	default:
		return broker.OrderResult{}, fmt.Errorf("%w: %v for %s", ErrInvalidSignal, signal, symbol)
	}

	a.tradeMu.Lock()
	defer a.tradeMu.Unlock()

	if err := a.refreshPositions(ctx); err != nil {
		return broker.OrderResult{}, fmt.Errorf("refresh positions: %w", err)
	}
	pos := a.Positions()[symbol]

	qty := a.cfg.OrderQty
	switch {
	case side == broker.Sell:
		if pos.Qty <= 0 {
			return broker.OrderResult{}, fmt.Errorf("sell %s: %w", symbol, ErrNoPosition)
		}
		last, ok := a.lots.LastLot(symbol)
		if !ok {
			return broker.OrderResult{}, fmt.Errorf("sell %s: %w", symbol, ledger.ErrEmptyLedger)
		}
		// a sell closes the most recent lot, never more than is held
		qty = min(last.Qty, pos.Qty)
	case reason == ReasonRebuy && pos.Qty > 0:
		return broker.OrderResult{}, fmt.Errorf("rebuy %s: %w", symbol, ErrStillHeld)
	}

	a.log.Info("placing order",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.String("reason", reason))
	res, err := a.broker.PlaceOrder(ctx, broker.MarketOrder(symbol, qty, side))
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("place %s %s: %w", side, symbol, err)
	}
	a.metrics.orders.WithLabelValues(string(side)).Inc()

	price := res.FilledPrice
	if !(price > 0) {
		if price, err = a.currentPrice(ctx, symbol); err != nil {
			price = pos.Price
		}
	}
	if res.Qty > 0 {
		qty = res.Qty
	}

	now := a.now()
	fill := journal.Fill{
		OrderID: res.ID,
		Symbol:  symbol,
		Side:    string(side),
		Qty:     qty,
		Price:   price,
		Reason:  reason,
		Time:    now,
	}

	switch side {
	case broker.Buy:
		a.lots.Append(symbol, ledger.Lot{Price: price, Qty: qty})
	case broker.Sell:
		lot, emptied, err := a.lots.Pop(symbol, qty, price, now)
		if err != nil {
			return res, fmt.Errorf("sell %s: %w", symbol, err)
		}
		fill.Lot = lot.Price
		fill.PnL = (price - lot.Price) * lot.Qty

		remaining := pos.Qty - qty
		switch {
		case remaining <= 0 && !emptied:
			dropped := a.lots.Flatten(symbol, price, now)
			a.log.Warn("position closed with lots left, flattening ledger",
				zap.String("symbol", symbol),
				zap.Int("lots", len(dropped)))
			emptied = true
		case remaining > 0 && emptied:
			a.lots.ForgetSold(symbol)
			a.log.Warn("last lot sold but position still held, leaving it out-of-band",
				zap.String("symbol", symbol),
				zap.Float64("held", remaining))
			emptied = false
		}
		if emptied {
			a.log.Info("position flat, watching for rebuy", zap.String("symbol", symbol), zap.Float64("exit", price))
		}
	}
	a.persist()

	if err := a.journal.RecordFill(fill); err != nil {
		a.log.Warn("journal fill", zap.String("symbol", symbol), zap.Error(err))
	}
	a.log.Info("trade executed",
		zap.String("order_id", res.ID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("pnl", fill.PnL))
	return res, nil
}

// persist saves the ledger. Callers hold tradeMu.
func (a *Agent) persist() {
	if a.store == nil {
		return
	}
	if err := a.store.SaveLedger(a.lots.Snapshot()); err != nil {
		a.log.Error("save ledger", zap.Error(err))
	}
}

// FinalReport fetches the account value, logs it and journals it.
func (a *Agent) FinalReport(ctx context.Context) (journal.AccountSnapshot, error) {
	v, err := a.broker.GetAccountValue(ctx)
	if err != nil {
		return journal.AccountSnapshot{}, fmt.Errorf("final account value: %w", err)
	}
	if err := a.refreshPositions(ctx); err != nil {
		a.log.Warn("final positions", zap.Error(err))
	}

	snap := journal.AccountSnapshot{
		Time:      a.now(),
		Value:     v.InexactFloat64(),
		Available: a.risk.AvailableFunds(ctx),
		Note:      "final",
	}
	a.metrics.accountValue.Set(snap.Value)
	a.log.Info("final account value",
		zap.String("value", v.StringFixed(2)),
		zap.Float64("available", snap.Available),
		zap.Strings("held", a.Positions().Held()))

	if err := a.journal.RecordAccount(snap); err != nil {
		return snap, fmt.Errorf("journal account: %w", err)
	}
	return snap, nil
}
