package market

import "sort"

// Position is the brokerage's view of a held instrument. Long only: Qty >= 0.
type Position struct {
	Symbol string
	Qty    float64
	Price  float64 // last known market price
}

// Positions maps symbol to position.
type Positions map[string]Position

// Held returns the symbols with a positive quantity, sorted.
func (p Positions) Held() []string {
	out := make([]string, 0, len(p))
	for sym, pos := range p {
		if pos.Qty > 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Qty returns the held quantity for symbol, zero when absent.
func (p Positions) Qty(symbol string) float64 {
	return p[symbol].Qty
}

// Clone returns an independent copy.
func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
