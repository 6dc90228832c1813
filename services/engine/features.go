package engine

import "math"

// Feature extraction over a candle series. Every function degrades to a
// neutral value on insufficient history instead of failing, so the forward
// walk never aborts mid-series.

// Candles strips the entry wrappers back to raw candles.
func Candles(entries []*CandleEntry) []Candle {
	out := make([]Candle, len(entries))
	for i, e := range entries {
		out[i] = e.Candle
	}
	return out
}

// AnalyzeCandlestick computes the per-candle feature set at index. When
// checkPast is set, the feature data of up to pastLookback preceding candles
// is attached, each of which gets one further level of its own lookback.
func AnalyzeCandlestick(entries []*CandleEntry, index int, checkPast bool, pastLookback int) CandleData {
	c := entries[index]

	size := math.Abs(c.High - c.Low)
	bodySize := math.Abs(c.Open - c.Close)
	topWick := c.High - math.Max(c.Open, c.Close)
	bottomWick := math.Min(c.Open, c.Close) - c.Low

	bodyPct, topWickPct, bottomWickPct := 0.0, 0.0, 0.0
	if size != 0 {
		bodyPct = bodySize / size * 100
		topWickPct = topWick / size * 100
		bottomWickPct = bottomWick / size * 100
	}

	side := "bear"
	if c.Close > c.Open {
		side = "bull"
	}

	// Wicks in the direction that confirms the body count toward strength.
	strength := topWickPct + bodyPct
	if side == "bull" {
		strength = bottomWickPct + bodyPct
	}

	changePct := 0.0
	if c.Open != 0 {
		changePct = (c.Close - c.Open) / c.Open * 100
	}

	volumeChangePct := 0.0
	if index > 0 && entries[index-1].Volume != 0 {
		prev := entries[index-1]
		volumeChangePct = (c.Volume - prev.Volume) / prev.Volume * 100
	}

	data := CandleData{
		Open:            c.Open,
		High:            c.High,
		Low:             c.Low,
		Close:           c.Close,
		OpenTime:        c.OpenTime,
		Volume:          c.Volume,
		VolumeChangePct: round2(volumeChangePct),
		BodyPct:         round2(bodyPct),
		TopWickPct:      round2(topWickPct),
		BottomWickPct:   round2(bottomWickPct),
		StrengthPct:     round2(strength),
		ChangePct:       round2(changePct),
		Side:            side,
		IsIndecisive:    bodyPct < topWickPct || bodyPct < bottomWickPct,
	}

	if checkPast {
		for i := 1; i <= pastLookback && index-i >= 0; i++ {
			data.Previous = append(data.Previous, AnalyzeCandlestick(entries, index-i, false, 0))
		}
		// One further level behind the attached window, hung off its oldest
		// member.
		for i := 1; i <= pastLookback && len(data.Previous) > 0; i++ {
			pastIndex := index - (pastLookback + i)
			if pastIndex <= 1 {
				break
			}
			last := &data.Previous[len(data.Previous)-1]
			last.Previous = append(last.Previous, AnalyzeCandlestick(entries, pastIndex, false, 0))
		}
	}

	return data
}

// DetectPriceMove classifies the candle at entryIndex as "shoots_up",
// "dragged_down" or "normal" using a z-score of its body-only move against
// the trailing 8 candles. Wick-dominated candles (body under 30% of the full
// range) are always "normal".
func DetectPriceMove(entries []*CandleEntry, entryIndex int) string {
	if len(entries) < 20 || entryIndex < 2 {
		return "normal"
	}
	c := entries[entryIndex]
	if c.Open == 0 {
		return "normal"
	}

	currentMove := (c.Close - c.Open) / c.Open * 100
	bodySize := math.Abs(currentMove)
	wickRange := (c.High - c.Low) / c.Open * 100
	if bodySize < wickRange*0.3 {
		return "normal"
	}

	start := entryIndex - 8
	if start < 0 {
		start = 0
	}
	recent := entries[start:entryIndex]

	absMoves := make([]float64, len(recent))
	moves := make([]float64, len(recent))
	for i, rc := range recent {
		m := (rc.Close - rc.Open) / rc.Open * 100
		moves[i] = m
		absMoves[i] = math.Abs(m)
	}
	avgMove := Mean(absMoves)

	// Variance of signed moves around the mean of absolute moves, as tuned.
	variance := 0.0
	for _, m := range moves {
		variance += (m - avgMove) * (m - avgMove)
	}
	variance /= float64(len(moves))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return "normal"
	}

	z := (currentMove - avgMove) / stdDev
	if z > 2.5 && currentMove > 0 {
		return "shoots_up"
	}
	if z < -2.5 && currentMove < 0 {
		return "dragged_down"
	}
	return "normal"
}

// DetectOverState classifies the latest candle as "overbought"/"oversold"
// via a rolling z-score of open-to-close percentage changes. Returns "" on
// insufficient data or zero variance.
func DetectOverState(entries []*CandleEntry, windowSize int, threshold float64) string {
	if len(entries) < windowSize+1 {
		return ""
	}
	past := entries[len(entries)-windowSize-1 : len(entries)-1]
	current := entries[len(entries)-1]

	changes := make([]float64, 0, len(past))
	for _, c := range past {
		if c.Open != 0 {
			changes = append(changes, (c.Close-c.Open)/c.Open*100)
		}
	}
	if len(changes) == 0 || current.Open == 0 {
		return ""
	}
	sd := StdDev(changes)
	if sd == 0 {
		return ""
	}

	z := ((current.Close-current.Open)/current.Open*100 - Mean(changes)) / sd
	if z > threshold {
		return "overbought"
	}
	if z < -threshold {
		return "oversold"
	}
	return ""
}

// HasVolumeSpike reports whether the latest candle's volume is at least
// multiplier times the trailing average AND at or above the trailing maximum.
func HasVolumeSpike(entries []*CandleEntry, lookback int, multiplier float64) bool {
	if len(entries) < lookback+1 {
		return false
	}
	current := entries[len(entries)-1].Volume
	if current == 0 {
		return false
	}
	past := entries[len(entries)-lookback-1 : len(entries)-1]
	volumes := make([]float64, 0, len(past))
	maxVolume := 0.0
	for _, c := range past {
		if c.Volume > 0 {
			volumes = append(volumes, c.Volume)
			if c.Volume > maxVolume {
				maxVolume = c.Volume
			}
		}
	}
	if len(volumes) == 0 {
		return false
	}
	return current >= Mean(volumes)*multiplier && current >= maxVolume
}

// SpaceTakenInZoneLevel measures the percentage overlap of the candle body
// plus wicks against the zone half (lower or upper of mid) its close sits in.
func SpaceTakenInZoneLevel(c *CandleEntry, zone PriceZone) float64 {
	mid := zone.Midpoint()
	a, b := mid, zone.Upper
	if c.Close < mid {
		a, b = zone.Lower, mid
	}
	span := b - a
	if span <= 0 {
		return 0
	}

	cHigh := math.Max(c.Open, math.Max(c.Close, c.High))
	cLow := math.Min(c.Open, math.Min(c.Close, c.Low))

	overlap := math.Min(cHigh, b) - math.Max(cLow, a)
	if overlap < 0 {
		overlap = 0
	}
	return overlap / span * 100
}

// AnalyzePastVolumes summarizes the volume regime of the lookback window
// before currentIndex.
func AnalyzePastVolumes(entries []*CandleEntry, currentIndex, lookback int) PastVolumeAnalysis {
	if currentIndex < lookback {
		return PastVolumeAnalysis{VolumeTrend: "none", DominantDirection: "mixed"}
	}
	past := entries[currentIndex-lookback : currentIndex]

	volumes := make([]float64, len(past))
	for i, c := range past {
		volumes[i] = c.Volume
	}
	pastAvg := Mean(volumes)

	half := len(past) / 2
	firstHalfAvg := Mean(volumes[:half])
	secondHalfAvg := Mean(volumes[half:])

	trend := "stable"
	if secondHalfAvg > firstHalfAvg*1.1 {
		trend = "increasing"
	} else if secondHalfAvg < firstHalfAvg*0.9 {
		trend = "decreasing"
	}

	bullCount, bearCount := 0, 0
	for _, c := range past {
		if c.Close > c.Open {
			bullCount++
		} else {
			bearCount++
		}
	}
	direction := "mixed"
	if bullCount > bearCount {
		direction = "bull"
	} else if bearCount > bullCount {
		direction = "bear"
	}

	return PastVolumeAnalysis{
		PastAvgVolume:     pastAvg,
		VolumeTrend:       trend,
		SpikeFlag:         entries[currentIndex].Volume > pastAvg*2,
		DominantDirection: direction,
	}
}

// PreviousSessionOverStateReaction looks at the previous session zone and
// reports how price reacted after its first candle in the given over-state.
func PreviousSessionOverStateReaction(entries []*CandleEntry, overState string) string {
	var zoneStarts []int
	for i, c := range entries {
		if c.Analyzed() && c.Analytics.CandleData.IsNewZone {
			zoneStarts = append(zoneStarts, i)
		}
	}
	if len(zoneStarts) < 2 {
		return "neutral"
	}

	prevStart := zoneStarts[len(zoneStarts)-2]
	currStart := zoneStarts[len(zoneStarts)-1]
	session := entries[prevStart:currStart]

	var firstOverStatePrice float64
	for _, c := range session {
		if c.Analyzed() && c.Analytics.CandleData.OverState == overState {
			firstOverStatePrice = c.Close
			break
		}
	}
	if firstOverStatePrice == 0 {
		return "neutral"
	}

	endPrice := session[len(session)-1].Close
	changePct := (endPrice - firstOverStatePrice) / firstOverStatePrice * 100
	if changePct > 0.5 {
		return "up"
	}
	if changePct < -0.5 {
		return "down"
	}
	return "neutral"
}
