package engine

import "math"

// Mean returns the arithmetic mean of xs, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs (divide by N).
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	v := 0.0
	for _, x := range xs {
		d := x - m
		v += d * d
	}
	return math.Sqrt(v / float64(len(xs)))
}

// ZScore measures how extreme x is against the window xs. Returns 0 when the
// window has no variance.
func ZScore(x float64, xs []float64) float64 {
	sd := StdDev(xs)
	if sd == 0 {
		return 0
	}
	return (x - Mean(xs)) / sd
}

// TrueRange of a candle given the previous close.
func TrueRange(c Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if hc := math.Abs(c.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(c.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// ATR averages the last period true-range values. Needs period+1 candles;
// returns 0 on insufficient data.
func ATR(candles []Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, TrueRange(candles[i], candles[i-1].Close))
	}
	return Mean(trs[len(trs)-period:])
}

// EMA computes the exponential moving average of closes, seeded from the
// earliest close in the window. Returns 0 for an empty series.
func EMA(candles []Candle, period int) float64 {
	if len(candles) == 0 || period <= 0 {
		return 0
	}
	k := 2.0 / (float64(period) + 1)
	ema := candles[0].Close
	for _, c := range candles[1:] {
		ema = c.Close*k + ema*(1-k)
	}
	return ema
}

// Volatility combines average absolute close-to-close change with average
// intra-candle range relative to open.
func Volatility(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	pctSum, pctN := 0.0, 0
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close != 0 {
			pctSum += math.Abs((candles[i].Close - candles[i-1].Close) / candles[i-1].Close)
			pctN++
		}
	}
	rangeSum, rangeN := 0.0, 0
	for _, c := range candles {
		if c.Open != 0 {
			rangeSum += (c.High - c.Low) / c.Open
			rangeN++
		}
	}
	avgPct := 0.0
	if pctN > 0 {
		avgPct = pctSum / float64(pctN)
	}
	avgRange := 0.0
	if rangeN > 0 {
		avgRange = rangeSum / float64(rangeN)
	}
	return (avgPct + avgRange) / 2
}

// IsVolatilityExpanding reports whether the back half of an ATR series runs
// hotter than the front half.
func IsVolatilityExpanding(atrs []float64) bool {
	if len(atrs) < 4 {
		return false
	}
	half := len(atrs) / 2
	front := Mean(atrs[:half])
	back := Mean(atrs[half:])
	if front == 0 {
		return false
	}
	return back > front*1.15
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
