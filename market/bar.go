package market

import "time"

// Bar represents one OHLCV bar for a symbol.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a time-ordered window of bars, oldest first.
type Series []Bar

// Len returns the number of bars in the window.
func (s Series) Len() int { return len(s) }

// Last returns the most recent bar and false when the series is empty.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Closes returns a fresh slice of close prices.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Highs returns a fresh slice of high prices.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.High
	}
	return out
}

// Lows returns a fresh slice of low prices.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Low
	}
	return out
}

// Tail returns the last n bars (or all of them when n >= len).
// The result shares memory with s.
func (s Series) Tail(n int) Series {
	if n <= 0 {
		return Series{}
	}
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// WithLatest returns a copy of s with b appended, or replacing the last bar
// when b falls on the same timestamp.
func (s Series) WithLatest(b Bar) Series {
	out := make(Series, len(s), len(s)+1)
	copy(out, s)
	if n := len(out); n > 0 && !b.Time.After(out[n-1].Time) {
		if b.Time.Equal(out[n-1].Time) {
			out[n-1] = b
		}
		return out
	}
	return append(out, b)
}
