// Package indicators provides technical analysis series functions.
//
// Every function takes a time-ordered slice (oldest first) and returns a new
// slice of the same length. Positions that are undefined because the window
// has not filled yet hold NaN, so the last element is the current value.
// Inputs are never modified.
package indicators

import "math"

// Last returns the final element of xs and whether it is a defined number.
func Last(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	v := xs[len(xs)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, false
	}
	return v, true
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
