package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type apiPosition struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

// GetPositions lists open positions.
func (c *Client) GetPositions(ctx context.Context) (market.Positions, error) {
	var resp []apiPosition
	if err := c.do(ctx, http.MethodGet, c.baseURL, "/v2/positions", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make(market.Positions, len(resp))
	for _, p := range resp {
		out[p.Symbol] = market.Position{
			Symbol: p.Symbol,
			Qty:    p.Qty.InexactFloat64(),
			Price:  p.CurrentPrice.InexactFloat64(),
		}
	}
	return out, nil
}

type orderRequest struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	TimeInForce   string          `json:"time_in_force"`
	ClientOrderID string          `json:"client_order_id"`
}

type apiOrder struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Qty            decimal.Decimal     `json:"qty"`
	Side           string              `json:"side"`
	Status         string              `json:"status"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	SubmittedAt    time.Time           `json:"submitted_at"`
}

// PlaceOrder submits an order. Each order carries a fresh client order ID.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return broker.OrderResult{}, err
	}

	body := orderRequest{
		Symbol:        req.Symbol,
		Qty:           decimal.NewFromFloat(req.Qty),
		Side:          string(req.Side),
		Type:          string(req.Type),
		TimeInForce:   string(req.TimeInForce),
		ClientOrderID: uuid.NewString(),
	}

	var o apiOrder
	if err := c.do(ctx, http.MethodPost, c.baseURL, "/v2/orders", nil, body, &o); err != nil {
		return broker.OrderResult{}, fmt.Errorf("place %s %s: %w", req.Side, req.Symbol, err)
	}

	res := broker.OrderResult{
		ID:          o.ID,
		ClientID:    o.ClientOrderID,
		Symbol:      o.Symbol,
		Qty:         o.Qty.InexactFloat64(),
		Side:        broker.Side(o.Side),
		Status:      o.Status,
		SubmittedAt: o.SubmittedAt,
	}
	if o.FilledAvgPrice.Valid {
		res.FilledPrice = o.FilledAvgPrice.Decimal.InexactFloat64()
	}
	return res, nil
}

type apiAccount struct {
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Equity         decimal.Decimal `json:"equity"`
	Cash           decimal.Decimal `json:"cash"`
}

// GetAccountValue returns the account's portfolio value.
func (c *Client) GetAccountValue(ctx context.Context) (decimal.Decimal, error) {
	var a apiAccount
	if err := c.do(ctx, http.MethodGet, c.baseURL, "/v2/account", nil, nil, &a); err != nil {
		return decimal.Zero, err
	}
	return a.PortfolioValue, nil
}

type apiClock struct {
	IsOpen bool `json:"is_open"`
}

func (c *Client) IsMarketOpen(ctx context.Context) (bool, error) {
	var clk apiClock
	if err := c.do(ctx, http.MethodGet, c.baseURL, "/v2/clock", nil, nil, &clk); err != nil {
		return false, err
	}
	return clk.IsOpen, nil
}

var _ broker.Brokerage = (*Client)(nil)
