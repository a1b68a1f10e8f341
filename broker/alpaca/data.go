package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/shopspring/decimal"
)

type apiBar struct {
	Time   time.Time       `json:"t"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
}

func (b apiBar) bar(symbol string) market.Bar {
	return market.Bar{
		Symbol: symbol,
		Time:   b.Time,
		Open:   b.Open.InexactFloat64(),
		High:   b.High.InexactFloat64(),
		Low:    b.Low.InexactFloat64(),
		Close:  b.Close.InexactFloat64(),
		Volume: b.Volume.InexactFloat64(),
	}
}

type barsResponse struct {
	Bars          []apiBar `json:"bars"`
	Symbol        string   `json:"symbol"`
	NextPageToken *string  `json:"next_page_token"`
}

// GetHistoricalBars returns split-adjusted daily bars in [start, end],
// following pagination.
func (c *Client) GetHistoricalBars(ctx context.Context, symbol string, start, end time.Time) (market.Series, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	q := url.Values{}
	q.Set("timeframe", "1Day")
	q.Set("adjustment", "all")
	q.Set("feed", c.feed)
	q.Set("limit", "10000")
	q.Set("start", start.UTC().Format(time.RFC3339))
	if !end.IsZero() {
		q.Set("end", end.UTC().Format(time.RFC3339))
	}

	path := "/v2/stocks/" + url.PathEscape(symbol) + "/bars"
	var out market.Series
	for {
		var resp barsResponse
		if err := c.do(ctx, http.MethodGet, c.dataURL, path, q, nil, &resp); err != nil {
			return nil, fmt.Errorf("bars %s: %w", symbol, err)
		}
		for _, b := range resp.Bars {
			out = append(out, b.bar(symbol))
		}
		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		q.Set("page_token", *resp.NextPageToken)
	}
	return out, nil
}

type latestBarResponse struct {
	Symbol string  `json:"symbol"`
	Bar    *apiBar `json:"bar"`
}

// GetLatestBar returns the most recent minute bar.
func (c *Client) GetLatestBar(ctx context.Context, symbol string) (market.Bar, error) {
	q := url.Values{}
	q.Set("feed", c.feed)

	var resp latestBarResponse
	path := "/v2/stocks/" + url.PathEscape(symbol) + "/bars/latest"
	if err := c.do(ctx, http.MethodGet, c.dataURL, path, q, nil, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return market.Bar{}, fmt.Errorf("latest bar %s: %w", symbol, broker.ErrNotFound)
		}
		return market.Bar{}, fmt.Errorf("latest bar %s: %w", symbol, err)
	}
	if resp.Bar == nil {
		return market.Bar{}, fmt.Errorf("latest bar %s: %w", symbol, broker.ErrNotFound)
	}
	return resp.Bar.bar(symbol), nil
}
