package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketOrder(t *testing.T) {
	t.Parallel()

	o := MarketOrder("AAPL", 1, Buy)
	assert.Equal(t, OrderRequest{Symbol: "AAPL", Qty: 1, Side: Buy, Type: Market, TimeInForce: GTC}, o)
	assert.NoError(t, o.Validate())
}

func TestOrderRequest_Validate(t *testing.T) {
	t.Parallel()

	base := MarketOrder("AAPL", 1, Sell)
	tests := []struct {
		name   string
		mutate func(*OrderRequest)
	}{
		{"no symbol", func(o *OrderRequest) { o.Symbol = " " }},
		{"zero qty", func(o *OrderRequest) { o.Qty = 0 }},
		{"negative qty", func(o *OrderRequest) { o.Qty = -1 }},
		{"bad side", func(o *OrderRequest) { o.Side = "short" }},
		{"bad type", func(o *OrderRequest) { o.Type = "stop" }},
		{"bad tif", func(o *OrderRequest) { o.TimeInForce = "ioc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			assert.Error(t, o.Validate())
		})
	}
}
