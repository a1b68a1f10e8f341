// Package broker defines the brokerage the agent trades through.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the brokerage has no data for a symbol.
var ErrNotFound = errors.New("not found")

// Brokerage is consumed by the agent. Implementations must be safe for
// concurrent use.
type Brokerage interface {
	GetPositions(ctx context.Context) (market.Positions, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetAccountValue(ctx context.Context) (decimal.Decimal, error)
	GetHistoricalBars(ctx context.Context, symbol string, start, end time.Time) (market.Series, error)
	GetLatestBar(ctx context.Context, symbol string) (market.Bar, error)
	IsMarketOpen(ctx context.Context) (bool, error)
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	Day TimeInForce = "day"
)

type OrderRequest struct {
	Symbol      string
	Qty         float64
	Side        Side
	Type        OrderType
	TimeInForce TimeInForce
}

// MarketOrder builds a good-til-cancelled market order.
func MarketOrder(symbol string, qty float64, side Side) OrderRequest {
	return OrderRequest{Symbol: symbol, Qty: qty, Side: side, Type: Market, TimeInForce: GTC}
}

func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return errors.New("order: symbol is required")
	}
	if !(r.Qty > 0) {
		return fmt.Errorf("order %s: qty must be > 0, got %v", r.Symbol, r.Qty)
	}
	switch r.Side {
	case Buy, Sell:
	default:
		return fmt.Errorf("order %s: bad side %q", r.Symbol, r.Side)
	}
	switch r.Type {
	case Market, Limit:
	default:
		return fmt.Errorf("order %s: bad type %q", r.Symbol, r.Type)
	}
	switch r.TimeInForce {
	case GTC, Day:
	default:
		return fmt.Errorf("order %s: bad time in force %q", r.Symbol, r.TimeInForce)
	}
	return nil
}

// OrderResult is the brokerage's acknowledgement of an order. FilledPrice
// is zero when the fill price is not yet known.
type OrderResult struct {
	ID          string
	ClientID    string
	Symbol      string
	Qty         float64
	Side        Side
	Status      string
	FilledPrice float64
	SubmittedAt time.Time
}
