package engine

import (
	"math"
	"time"
)

// GeneratePriceZone builds a session zone from the given window: the body
// range padded outward by half the wick excursion on each side. Wider than
// pure body range, narrower than full wick range.
func GeneratePriceZone(entries []*CandleEntry) PriceZone {
	if len(entries) == 0 {
		return PriceZone{}
	}

	highestBody := math.Inf(-1)
	lowestBody := math.Inf(1)
	highestWick := math.Inf(-1)
	lowestWick := math.Inf(1)
	for _, c := range entries {
		highestBody = math.Max(highestBody, math.Max(c.Open, c.Close))
		lowestBody = math.Min(lowestBody, math.Min(c.Open, c.Close))
		highestWick = math.Max(highestWick, c.High)
		lowestWick = math.Min(lowestWick, c.Low)
	}

	upper := highestBody + (highestWick-highestBody)/2
	lower := lowestBody - (lowestBody-lowestWick)/2
	return PriceZone{Lower: lower, Mid: (upper + lower) / 2, Upper: upper}
}

// ComputeSupportResistance derives ATR-buffered support and resistance bands
// from the swing low/high of the trailing window, excluding the latest
// candle. Mid is left 0 on both bands. Bands that would overlap are pushed
// apart symmetrically around their midpoint.
func ComputeSupportResistance(entries []*CandleEntry, windowLength int) (support, resistance PriceZone) {
	if len(entries) == 0 {
		return PriceZone{}, PriceZone{}
	}
	window := windowLength
	if window > len(entries) {
		window = len(entries)
	}
	start := len(entries) - window - 1
	if start < 0 {
		start = 0
	}
	recent := entries[start : len(entries)-1]
	if len(recent) == 0 {
		return PriceZone{}, PriceZone{}
	}

	swingLow := math.Inf(1)
	swingHigh := math.Inf(-1)
	for _, c := range recent {
		swingLow = math.Min(swingLow, c.Low)
		swingHigh = math.Max(swingHigh, c.High)
	}

	atr := ATR(Candles(recent), 14)
	if !isFinite(atr) || atr <= 0 {
		atr = (swingHigh - swingLow) * 0.05
	}
	buffer := math.Abs(atr * 0.5)

	support = PriceZone{Lower: math.Max(0, swingLow-buffer), Upper: math.Max(0, swingLow+buffer)}
	resistance = PriceZone{Lower: math.Max(0, swingHigh-buffer), Upper: math.Max(0, swingHigh+buffer)}

	if support.Upper > resistance.Lower {
		mid := (support.Upper + resistance.Lower) / 2
		support.Upper = mid * 0.99
		resistance.Lower = mid * 1.01
	}
	return support, resistance
}

// InitializeSupportResistance back-fills frozen support/resistance snapshots
// and breakthrough flags onto the trailing initLength entries, each computed
// from only the history up to that entry.
func InitializeSupportResistance(entries []*CandleEntry, initLength, srPeriod int) {
	for i := 1; i <= initLength; i++ {
		idx := len(entries) - 1 - i
		if idx < 0 {
			break
		}
		support, resistance := ComputeSupportResistance(entries[:idx+1], srPeriod)
		e := entries[idx]
		e.Support = &PriceZone{Lower: support.Lower, Upper: support.Upper}
		e.Resistance = &PriceZone{Lower: resistance.Lower, Upper: resistance.Upper}
		e.BreakthroughResistance = e.Close > resistance.Upper
		e.BreakthroughSupport = e.Close < support.Lower
	}
}

// Session zones roll at fixed local boundaries.
var sessionBoundaryHours = [4]int{0, 6, 12, 18}

// IsSessionBoundary reports whether the timestamp (ms) opens a new session
// zone: local hour 00/06/12/18 at minute 0.
func IsSessionBoundary(timestampMs int64, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	t := time.UnixMilli(timestampMs).In(loc)
	if t.Minute() != 0 {
		return false
	}
	for _, h := range sessionBoundaryHours {
		if t.Hour() == h {
			return true
		}
	}
	return false
}

func isFinite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }
