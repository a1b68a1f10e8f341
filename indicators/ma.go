package indicators

import "math"

// SMA returns the rolling simple moving average over period.
func SMA(xs []float64, period int) []float64 {
	out := nans(len(xs))
	if period <= 0 || len(xs) < period {
		return out
	}

	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RollingStd returns the rolling sample standard deviation (n-1 denominator).
func RollingStd(xs []float64, period int) []float64 {
	out := nans(len(xs))
	if period <= 1 || len(xs) < period {
		return out
	}

	for i := period - 1; i < len(xs); i++ {
		window := xs[i-period+1 : i+1]
		mean := 0.0
		for _, x := range window {
			mean += x
		}
		mean /= float64(period)

		ss := 0.0
		for _, x := range window {
			d := x - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

// EWM returns the exponentially weighted mean with alpha = 2/(span+1),
// using the recursive form seeded with the first observation.
func EWM(xs []float64, span int) []float64 {
	out := nans(len(xs))
	if span <= 0 || len(xs) == 0 {
		return out
	}

	alpha := 2.0 / float64(span+1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// PctChange returns the fractional change from the previous element.
// The first element is NaN.
func PctChange(xs []float64) []float64 {
	out := nans(len(xs))
	for i := 1; i < len(xs); i++ {
		if xs[i-1] == 0 {
			continue
		}
		out[i] = xs[i]/xs[i-1] - 1
	}
	return out
}
