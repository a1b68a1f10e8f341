package risk

// StopLossPrice is entry × (1 − riskThreshold).
func StopLossPrice(entry, riskThreshold float64) float64 {
	return entry * (1 - riskThreshold)
}

// TrailingStopPrice is reference × fraction, e.g. 95% of the day's open.
func TrailingStopPrice(reference, fraction float64) float64 {
	return reference * fraction
}

// StopLossHit reports whether price is strictly below the stop for entry.
func StopLossHit(price, entry, riskThreshold float64) bool {
	return price < StopLossPrice(entry, riskThreshold)
}
