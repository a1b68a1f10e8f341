// Package paper is an in-memory brokerage that fills market orders at the
// latest known close. Market data comes from an optional upstream source or
// from bars fed in with AddBar.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
)

// DataSource supplies market data, typically a live REST client.
type DataSource interface {
	GetHistoricalBars(ctx context.Context, symbol string, start, end time.Time) (market.Series, error)
	GetLatestBar(ctx context.Context, symbol string) (market.Bar, error)
}

type Broker struct {
	mu     sync.Mutex
	cash   decimal.Decimal
	qty    map[string]float64
	bars   map[string]market.Series
	open   bool
	orders []broker.OrderResult
	data   DataSource
	now    func() time.Time
}

// New returns a paper broker holding cash. data may be nil.
func New(cash decimal.Decimal, data DataSource) *Broker {
	return &Broker{
		cash: cash,
		qty:  make(map[string]float64),
		bars: make(map[string]market.Series),
		open: true,
		data: data,
		now:  time.Now,
	}
}

// AddBar records a bar for symbol b.Symbol.
func (p *Broker) AddBar(b market.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[b.Symbol] = p.bars[b.Symbol].WithLatest(b)
}

// SetHistory replaces the bars held for symbol.
func (p *Broker) SetHistory(symbol string, s market.Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = append(market.Series(nil), s...)
}

// SetMarketOpen sets the value IsMarketOpen reports.
func (p *Broker) SetMarketOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = open
}

// Seed sets a starting position without touching cash.
func (p *Broker) Seed(symbol string, qty float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.qty[symbol] = qty
}

// Orders returns every filled order, oldest first.
func (p *Broker) Orders() []broker.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]broker.OrderResult(nil), p.orders...)
}

func (p *Broker) price(ctx context.Context, symbol string) (float64, error) {
	b, err := p.GetLatestBar(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return b.Close, nil
}

func (p *Broker) GetPositions(ctx context.Context) (market.Positions, error) {
	p.mu.Lock()
	syms := make([]string, 0, len(p.qty))
	for sym, q := range p.qty {
		if q > 0 {
			syms = append(syms, sym)
		}
	}
	qty := make(map[string]float64, len(syms))
	for _, sym := range syms {
		qty[sym] = p.qty[sym]
	}
	p.mu.Unlock()
	sort.Strings(syms)

	out := make(market.Positions, len(syms))
	for _, sym := range syms {
		px, err := p.price(ctx, sym)
		if err != nil && !errors.Is(err, broker.ErrNotFound) {
			return nil, err
		}
		out[sym] = market.Position{Symbol: sym, Qty: qty[sym], Price: px}
	}
	return out, nil
}

func (p *Broker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return broker.OrderResult{}, err
	}
	px, err := p.price(ctx, req.Symbol)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("paper %s %s: %w", req.Side, req.Symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	notional := decimal.NewFromFloat(px).Mul(decimal.NewFromFloat(req.Qty))
	switch req.Side {
	case broker.Buy:
		if notional.GreaterThan(p.cash) {
			return broker.OrderResult{}, fmt.Errorf("paper buy %s: %w", req.Symbol, ErrInsufficientFunds)
		}
		p.cash = p.cash.Sub(notional)
		p.qty[req.Symbol] += req.Qty
	case broker.Sell:
		if p.qty[req.Symbol] < req.Qty {
			return broker.OrderResult{}, fmt.Errorf("paper sell %s: %w", req.Symbol, ErrInsufficientPosition)
		}
		p.cash = p.cash.Add(notional)
		p.qty[req.Symbol] -= req.Qty
		if p.qty[req.Symbol] == 0 {
			delete(p.qty, req.Symbol)
		}
	}

	id := uuid.NewString()
	res := broker.OrderResult{
		ID:          id,
		ClientID:    id,
		Symbol:      req.Symbol,
		Qty:         req.Qty,
		Side:        req.Side,
		Status:      "filled",
		FilledPrice: px,
		SubmittedAt: p.now(),
	}
	p.orders = append(p.orders, res)
	return res, nil
}

// GetAccountValue is cash plus held quantities marked at the latest close.
func (p *Broker) GetAccountValue(ctx context.Context) (decimal.Decimal, error) {
	positions, err := p.GetPositions(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	p.mu.Lock()
	total := p.cash
	p.mu.Unlock()

	for _, pos := range positions {
		total = total.Add(decimal.NewFromFloat(pos.Price).Mul(decimal.NewFromFloat(pos.Qty)))
	}
	return total, nil
}

func (p *Broker) GetHistoricalBars(ctx context.Context, symbol string, start, end time.Time) (market.Series, error) {
	if p.data != nil {
		return p.data.GetHistoricalBars(ctx, symbol, start, end)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("bars %s: %w", symbol, broker.ErrNotFound)
	}
	var out market.Series
	for _, b := range s {
		if b.Time.Before(start) || (!end.IsZero() && b.Time.After(end)) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (p *Broker) GetLatestBar(ctx context.Context, symbol string) (market.Bar, error) {
	if p.data != nil {
		return p.data.GetLatestBar(ctx, symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.bars[symbol].Last()
	if !ok {
		return market.Bar{}, fmt.Errorf("latest bar %s: %w", symbol, broker.ErrNotFound)
	}
	return b, nil
}

func (p *Broker) IsMarketOpen(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open, nil
}

var _ broker.Brokerage = (*Broker)(nil)
