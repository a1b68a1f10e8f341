package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/Zia-Rashid/Krusty-Krab/ledger"
	"github.com/Zia-Rashid/Krusty-Krab/market"
	"github.com/Zia-Rashid/Krusty-Krab/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPositions market.Positions

func (s staticPositions) Positions() market.Positions { return market.Positions(s) }

type account struct {
	value decimal.Decimal
	err   error
}

func (a account) GetAccountValue(context.Context) (decimal.Decimal, error) { return a.value, a.err }

func newManager(lots *ledger.Ledger, pos market.Positions, acct account) *Manager {
	return NewManager(DefaultConfig(), lots, staticPositions(pos), acct, nil)
}

func TestStopLossPrice(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 95.0, StopLossPrice(100, 0.05), 1e-9)
	assert.True(t, StopLossHit(94, 100, 0.05))
	assert.False(t, StopLossHit(95, 100, 0.05))

	for _, p := range []float64{0, 1, 37.5, 100, 1e6} {
		prev := StopLossPrice(p, 0)
		assert.Equal(t, p, prev)
		for r := 0.05; r <= 1.0001; r += 0.05 {
			got := StopLossPrice(p, r)
			assert.InDelta(t, p*(1-r), got, 1e-9)
			assert.LessOrEqual(t, got, prev, "monotone in r for p=%v", p)
			prev = got
		}
	}
}

func TestTrailingStopPrice(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 95.0, TrailingStopPrice(100, 0.95), 1e-9)

	m := newManager(ledger.New(), nil, account{})
	assert.InDelta(t, 95.0, m.TrailingStop(100), 1e-9)
	assert.InDelta(t, 95.0, m.StopLoss(100), 1e-9)
}

func TestPositionValue(t *testing.T) {
	t.Parallel()

	lots := ledger.New()
	lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})
	lots.Append("XYZ", ledger.Lot{Price: 110, Qty: 1})
	m := newManager(lots, market.Positions{"XYZ": {Symbol: "XYZ", Qty: 2, Price: 120}}, account{})

	v, err := m.PositionValue("XYZ")
	require.NoError(t, err)
	assert.InDelta(t, 210.0, v, 1e-9)

	weighted := ledger.New()
	weighted.Append("XYZ", ledger.Lot{Price: 100, Qty: 3})
	weighted.Append("XYZ", ledger.Lot{Price: 120, Qty: 1})
	m = newManager(weighted, market.Positions{"XYZ": {Symbol: "XYZ", Qty: 4, Price: 120}}, account{})
	v, err = m.PositionValue("XYZ")
	require.NoError(t, err)
	assert.InDelta(t, 420.0, v, 1e-9)
}

func TestPositionValue_MissingData(t *testing.T) {
	t.Parallel()

	m := newManager(ledger.New(), market.Positions{"XYZ": {Symbol: "XYZ", Qty: 1, Price: 100}}, account{})

	_, err := m.PositionValue("XYZ") // held but empty ledger
	assert.ErrorIs(t, err, ErrMissingData)

	_, err = m.PositionValue("ABC") // not held
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestAvailableFunds(t *testing.T) {
	t.Parallel()

	lots := ledger.New()
	lots.Append("AAA", ledger.Lot{Price: 10, Qty: 3})
	lots.Append("BBB", ledger.Lot{Price: 50, Qty: 2})
	pos := market.Positions{
		"AAA": {Symbol: "AAA", Qty: 3, Price: 11},
		"BBB": {Symbol: "BBB", Qty: 2, Price: 49},
		"ZZZ": {Symbol: "ZZZ", Qty: 0},
	}

	t.Run("sums held positions", func(t *testing.T) {
		m := newManager(lots, pos, account{value: decimal.NewFromInt(1000)})
		assert.InDelta(t, 1000.0-30-100, m.AvailableFunds(context.Background()), 1e-9)
	})

	t.Run("account failure yields zero", func(t *testing.T) {
		m := newManager(lots, pos, account{err: errors.New("boom")})
		assert.Equal(t, 0.0, m.AvailableFunds(context.Background()))
	})

	t.Run("missing lots yields zero", func(t *testing.T) {
		withGap := pos.Clone()
		withGap["CCC"] = market.Position{Symbol: "CCC", Qty: 1, Price: 5}
		m := newManager(lots, withGap, account{value: decimal.NewFromInt(1000)})
		assert.Equal(t, 0.0, m.AvailableFunds(context.Background()))
	})
}

func TestPositionSizingVeto(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		pos, port, cash, f float64
		want               strategies.Signal
	}{
		{"small and funded", 50, 1000, 500, 0.10, strategies.Hold},
		{"at the limit", 100, 1000, 500, 0.10, strategies.Hold},
		{"too large", 101, 1000, 500, 0.10, strategies.Sell},
		{"cash short", 50, 1000, 49, 0.10, strategies.Sell},
		{"default fraction", 150, 1000, 500, 0, strategies.Sell},
		{"custom fraction", 150, 1000, 500, 0.2, strategies.Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PositionSizingVeto(tt.pos, tt.port, tt.cash, tt.f))
		})
	}
}

func TestSizingStrategy(t *testing.T) {
	t.Parallel()

	lots := ledger.New()
	lots.Append("XYZ", ledger.Lot{Price: 100, Qty: 1})
	m := newManager(lots, market.Positions{"XYZ": {Symbol: "XYZ", Qty: 1, Price: 100}}, account{})

	s := SizingStrategy{}
	assert.Equal(t, "SIZING(0.10)", s.Name())

	score, err := s.Evaluate("XYZ", nil, strategies.RiskContext{PortfolioValue: 10000, AvailableCash: 5000, Positions: m})
	require.NoError(t, err)
	assert.Equal(t, strategies.FromSignal(strategies.Hold), score)

	score, err = s.Evaluate("XYZ", nil, strategies.RiskContext{PortfolioValue: 500, AvailableCash: 5000, Positions: m})
	require.NoError(t, err)
	assert.Equal(t, strategies.FromSignal(strategies.Sell), score)

	_, err = s.Evaluate("ABC", nil, strategies.RiskContext{Positions: m})
	assert.ErrorIs(t, err, ErrMissingData)

	_, err = s.Evaluate("XYZ", nil, strategies.RiskContext{})
	assert.ErrorIs(t, err, ErrMissingData)

	built, err := strategies.New("sizing")
	require.NoError(t, err)
	assert.Equal(t, s.Name(), built.Name())
}

func TestZeroRiskThresholdIsKept(t *testing.T) {
	t.Parallel()

	m := NewManager(Config{}, ledger.New(), staticPositions(nil), account{}, nil)
	assert.Equal(t, 0.0, m.Config().RiskThreshold)
	assert.Equal(t, 100.0, m.StopLoss(100))
	assert.False(t, StopLossHit(100, 100, m.Config().RiskThreshold))
	assert.True(t, StopLossHit(99.99, 100, m.Config().RiskThreshold))
	assert.Equal(t, DefaultTrailingFraction, m.Config().TrailingFraction)
	assert.Equal(t, DefaultMaxFraction, m.Config().MaxFraction)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{RiskThreshold: 0.05, MaxFraction: 0.1, TrailingFraction: 0.95}.Validate())
	assert.Error(t, Config{RiskThreshold: 1.5}.Validate())
	assert.Error(t, Config{MaxFraction: -1}.Validate())
	assert.Error(t, Config{TrailingFraction: 2}.Validate())
}
