package indicators

import "math"

// TrueRange returns the per-bar true range. The first bar has no previous
// close, so its true range is high - low.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	if len(highs) < n {
		n = len(highs)
	}
	if len(lows) < n {
		n = len(lows)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		tr := highs[i] - lows[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		}
		out[i] = tr
	}
	return out
}

// ATR returns the Average True Range as a simple rolling mean of true ranges.
func ATR(highs, lows, closes []float64, period int) []float64 {
	return SMA(TrueRange(highs, lows, closes), period)
}
