package paper

import (
	"context"
	"testing"
	"time"

	"github.com/Zia-Rashid/Krusty-Krab/broker"
	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func bar(sym string, day int, c float64) market.Bar {
	return market.Bar{Symbol: sym, Time: day0.AddDate(0, 0, day), Open: c, High: c, Low: c, Close: c}
}

func TestPaper_BuySellRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := New(decimal.NewFromInt(1000), nil)
	p.AddBar(bar("XYZ", 0, 100))

	res, err := p.PlaceOrder(ctx, broker.MarketOrder("XYZ", 2, broker.Buy))
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.FilledPrice)
	assert.Equal(t, "filled", res.Status)
	assert.NotEmpty(t, res.ID)

	pos, err := p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, market.Position{Symbol: "XYZ", Qty: 2, Price: 100}, pos["XYZ"])

	p.AddBar(bar("XYZ", 1, 110))
	v, err := p.GetAccountValue(ctx)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(1020)), v.String())

	_, err = p.PlaceOrder(ctx, broker.MarketOrder("XYZ", 2, broker.Sell))
	require.NoError(t, err)
	pos, err = p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pos)

	v, err = p.GetAccountValue(ctx)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(1020)), v.String())
	assert.Len(t, p.Orders(), 2)
}

func TestPaper_Rejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := New(decimal.NewFromInt(50), nil)
	p.AddBar(bar("XYZ", 0, 100))

	_, err := p.PlaceOrder(ctx, broker.MarketOrder("XYZ", 1, broker.Buy))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = p.PlaceOrder(ctx, broker.MarketOrder("XYZ", 1, broker.Sell))
	assert.ErrorIs(t, err, ErrInsufficientPosition)

	_, err = p.PlaceOrder(ctx, broker.MarketOrder("NOPE", 1, broker.Buy))
	assert.ErrorIs(t, err, broker.ErrNotFound)

	assert.Empty(t, p.Orders())
}

func TestPaper_HistoricalBars(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := New(decimal.Zero, nil)
	for d := 0; d < 10; d++ {
		p.AddBar(bar("XYZ", d, float64(100+d)))
	}

	got, err := p.GetHistoricalBars(ctx, "XYZ", day0.AddDate(0, 0, 3), day0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, []float64{103, 104, 105}, got.Closes())

	got, err = p.GetHistoricalBars(ctx, "XYZ", day0.AddDate(0, 0, 8), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []float64{108, 109}, got.Closes())

	_, err = p.GetHistoricalBars(ctx, "NOPE", day0, time.Time{})
	assert.ErrorIs(t, err, broker.ErrNotFound)

	last, err := p.GetLatestBar(ctx, "XYZ")
	require.NoError(t, err)
	assert.Equal(t, 109.0, last.Close)
}

func TestPaper_MarketClock(t *testing.T) {
	t.Parallel()

	p := New(decimal.Zero, nil)
	open, err := p.IsMarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)

	p.SetMarketOpen(false)
	open, _ = p.IsMarketOpen(context.Background())
	assert.False(t, open)
}

type upstream struct{ close float64 }

func (u upstream) GetHistoricalBars(context.Context, string, time.Time, time.Time) (market.Series, error) {
	return market.Series{bar("UP", 0, u.close)}, nil
}

func (u upstream) GetLatestBar(context.Context, string) (market.Bar, error) {
	return bar("UP", 0, u.close), nil
}

func TestPaper_UpstreamData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := New(decimal.NewFromInt(100), upstream{close: 25})
	p.Seed("UP", 1)

	res, err := p.PlaceOrder(ctx, broker.MarketOrder("UP", 2, broker.Buy))
	require.NoError(t, err)
	assert.Equal(t, 25.0, res.FilledPrice)

	pos, err := p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, pos.Qty("UP"))

	v, err := p.GetAccountValue(ctx)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(125)), v.String())
}
