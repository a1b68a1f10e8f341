package indicators

import "math"

// RSI returns the relative strength index using simple rolling means of
// gains and losses over period. The first period values are NaN.
//
// With no losses in the window the RSI is 100; with neither gains nor
// losses it is undefined (NaN).
func RSI(closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	gains[0], losses[0] = math.NaN(), math.NaN()
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	avgGain := SMA(gains[1:], period)
	avgLoss := SMA(losses[1:], period)
	for i := range avgGain {
		g, l := avgGain[i], avgLoss[i]
		if math.IsNaN(g) || math.IsNaN(l) {
			continue
		}
		switch {
		case l == 0 && g == 0:
			// undefined
		case l == 0:
			out[i+1] = 100
		default:
			out[i+1] = 100 - 100/(1+g/l)
		}
	}
	return out
}
