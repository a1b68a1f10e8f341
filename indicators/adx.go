package indicators

import "math"

// DMI holds Wilder's directional movement series: +DI, -DI and ADX.
type DMI struct {
	PlusDI  []float64
	MinusDI []float64
	ADX     []float64
}

// ADX computes Wilder's Average Directional Index over period.
//
// Smoothed TR/+DM/-DM are seeded with the simple mean of the first period
// samples (bars 1..period), so DI is defined from bar period on. ADX is
// seeded with the mean of the first period DX values and is defined from
// bar 2*period-1 on.
func ADX(highs, lows, closes []float64, period int) DMI {
	n := len(closes)
	if len(highs) < n {
		n = len(highs)
	}
	if len(lows) < n {
		n = len(lows)
	}
	out := DMI{PlusDI: nans(n), MinusDI: nans(n), ADX: nans(n)}
	if period <= 0 || n < period+1 {
		return out
	}

	tr := TrueRange(highs[:n], lows[:n], closes[:n])
	p := float64(period)

	var (
		trS, pdmS, mdmS float64
		dxSum           float64
		dxCount         int
		adx             float64
	)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]

		var pdm, mdm float64
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}

		if i <= period {
			trS += tr[i]
			pdmS += pdm
			mdmS += mdm
			if i < period {
				continue
			}
			trS /= p
			pdmS /= p
			mdmS /= p
		} else {
			trS = (trS*(p-1) + tr[i]) / p
			pdmS = (pdmS*(p-1) + pdm) / p
			mdmS = (mdmS*(p-1) + mdm) / p
		}

		if trS == 0 {
			continue
		}
		pdi := 100 * pdmS / trS
		mdi := 100 * mdmS / trS
		out.PlusDI[i] = pdi
		out.MinusDI[i] = mdi

		dx := 0.0
		if den := pdi + mdi; den != 0 {
			dx = 100 * math.Abs(pdi-mdi) / den
		}

		if dxCount < period {
			dxSum += dx
			dxCount++
			if dxCount == period {
				adx = dxSum / p
				out.ADX[i] = adx
			}
			continue
		}
		adx = (adx*(p-1) + dx) / p
		out.ADX[i] = adx
	}
	return out
}
