package engine

import "math"

// AnalyzeZoneBias scores the latest candle against the frozen support or
// resistance band. side "BUY" targets the support zone, anything else the
// resistance zone. The weighted long/short bias needs a 0.60 score to fire,
// and the reversal-at-zone signal is always checked before the breakout
// continuation signal.
func AnalyzeZoneBias(
	side string,
	currentPrice float64,
	entries []*CandleEntry,
	support, resistance PriceZone,
	pastInteractionLength, pastTrendLength, momentumLength, breakthroughLength int,
) ZoneAnalysis {
	zone := resistance
	zoneType := "resistance"
	if side == "BUY" {
		zone = support
		zoneType = "support"
	}
	zoneWidth := math.Abs(zone.Upper - zone.Lower)
	if zoneWidth == 0 {
		zoneWidth = 1e-8
	}

	distanceFromZone := 0.0
	if currentPrice > zone.Upper {
		distanceFromZone = currentPrice - zone.Upper
	} else if currentPrice < zone.Lower {
		distanceFromZone = zone.Lower - currentPrice
	}
	priceProximity := math.Min(100, distanceFromZone/zoneWidth*100)
	proximityScore := 100 - priceProximity

	proximityConfidence := math.Exp(-2.5 * distanceFromZone / zoneWidth)
	if currentPrice >= zone.Lower && currentPrice <= zone.Upper {
		proximityConfidence = 1
	}

	past := entries[:len(entries)-1]

	bStart := len(past) - breakthroughLength
	if bStart < 0 {
		bStart = 0
	}
	pastResistanceBreaks, pastSupportBreaks := 0, 0
	for _, c := range past[bStart:] {
		if c.BreakthroughResistance {
			pastResistanceBreaks++
		}
		if c.BreakthroughSupport {
			pastSupportBreaks++
		}
	}

	iStart := len(past) - pastInteractionLength
	if iStart < 0 {
		iStart = 0
	}
	interactions := 0
	for _, c := range past[iStart:] {
		if side == "SELL" &&
			((c.High > resistance.Lower && c.Low < resistance.Lower) ||
				(c.High > resistance.Upper && c.Low < resistance.Lower) ||
				(c.High > resistance.Upper && c.Low > resistance.Lower && c.Low < resistance.Upper)) {
			interactions++
		}
		if side == "BUY" &&
			((c.High > support.Upper && c.Low < support.Upper) ||
				(c.High > support.Upper && c.Low < support.Lower) ||
				(c.Low < support.Lower && c.High > support.Lower && c.High < support.Upper)) {
			interactions++
		}
	}

	tStart := len(entries) - pastTrendLength - 1
	if tStart < 0 {
		tStart = 0
	}
	bullish, bearish := 0, 0
	for _, c := range entries[tStart : len(entries)-1] {
		if c.Close > c.Open {
			bullish++
		} else if c.Close < c.Open {
			bearish++
		}
	}
	pastTrend := "sideways"
	if float64(bullish) > float64(bearish)*1.4 {
		pastTrend = "bullish"
	} else if float64(bearish) > float64(bullish)*1.4 {
		pastTrend = "bearish"
	}

	mStart := len(entries) - momentumLength
	if mStart < 0 {
		mStart = 0
	}
	momentumCandles := entries[mStart:]
	current := momentumCandles[len(momentumCandles)-1]

	sizes := make([]float64, len(momentumCandles))
	volumes := make([]float64, len(momentumCandles))
	for i, c := range momentumCandles {
		sizes[i] = math.Abs(c.Close - c.Open)
		volumes[i] = c.Volume
	}
	stdSize := StdDev(sizes)
	if stdSize == 0 {
		stdSize = 1e-8
	}
	z := (math.Abs(current.Close-current.Open) - Mean(sizes)) / stdSize
	momentum := clamp(50+z*50, 0, 100)

	stdVolume := StdDev(volumes)
	if stdVolume == 0 {
		stdVolume = 1e-8
	}
	volumeZ := (current.Volume - Mean(volumes)) / stdVolume
	volumeConfluence := clamp(1+volumeZ*0.3, 0.2, 3)

	minutes := float64(current.CloseTime-current.OpenTime) / 60000
	if minutes == 0 {
		minutes = 1
	}
	reactionVelocity := math.Abs(current.Close-current.Open) / zoneWidth / minutes
	normalizedVelocity := math.Min(1, reactionVelocity/2)

	zoneTouchDetected := currentPrice >= zone.Lower && currentPrice <= zone.Upper && interactions > 0

	pStart := len(entries) - 10
	if pStart < 0 {
		pStart = 0
	}
	closes := make([]float64, 0, 10)
	for _, c := range entries[pStart:] {
		closes = append(closes, c.Close)
	}
	volatilityScore := math.Min(1, StdDev(closes)/zoneWidth)

	zoneStrength := math.Min(1, math.Max(0.1, float64(interactions)/5))
	signalConfidence := math.Min(1,
		(zoneStrength*0.25+momentum/100*0.4+volumeConfluence/2*0.35)*proximityConfidence)

	inZoneCount := 0
	for _, c := range entries {
		if c.Low <= zone.Upper && c.High >= zone.Lower {
			inZoneCount++
		}
	}
	timeInZoneMs := float64(inZoneCount) * 60000

	breakoutProbability := math.Min(1,
		momentum/100*0.5+volumeConfluence*0.2+volatilityScore*0.3)

	overallBias := "neutral"
	trendBonus := func(trend string) float64 {
		switch pastTrend {
		case trend:
			return 0.35
		case "sideways":
			return 0.15
		}
		return 0
	}
	touchBonus := 0.0
	if zoneTouchDetected {
		touchBonus = 0.15
	}
	farBonus := 0.0
	if proximityConfidence < 0.4 {
		farBonus = 0.35
	}
	if side == "BUY" {
		longScore := proximityConfidence*0.25 + trendBonus("bearish") + momentum/100*0.25 + touchBonus
		shortScore := breakoutProbability*0.4 + farBonus + momentum/100*0.25
		if longScore > 0.60 {
			overallBias = "long"
		} else if shortScore > 0.60 {
			overallBias = "short"
		}
	} else {
		shortScore := proximityConfidence*0.25 + trendBonus("bullish") + momentum/100*0.25 + touchBonus
		longScore := breakoutProbability*0.4 + farBonus + momentum/100*0.25
		if shortScore > 0.60 {
			overallBias = "short"
		} else if longScore > 0.60 {
			overallBias = "long"
		}
	}

	return ZoneAnalysis{
		PriceProximityCloseToZone: priceProximity,
		PastInteractionsToZone:    interactions,
		PastTrend:                 pastTrend,
		Momentum:                  momentum,
		ZoneWidth:                 zoneWidth,
		ZoneType:                  zoneType,
		ZoneStrength:              zoneStrength,
		ZoneTouchDetected:         zoneTouchDetected,
		ReactionVelocity:          normalizedVelocity,
		VolumeConfluence:          volumeConfluence,
		CurrentCandleReversal: (side == "BUY" && current.Close > current.Open) ||
			(side == "SELL" && current.Close < current.Open),
		VolatilityScore:          volatilityScore,
		ProximityScore:           proximityScore,
		ProximityConfidence:      proximityConfidence,
		SignalConfidence:         signalConfidence,
		InteractionStrength:      float64(interactions) * proximityScore * (momentum / 100) / 100,
		MomentumStrength:         momentum * volumeConfluence * normalizedVelocity,
		TimeInZoneMs:             timeInZoneMs,
		BreakoutProbability:      breakoutProbability,
		OverallBias:              overallBias,
		PastResistanceBreakCount: pastResistanceBreaks,
		PastSupportBreakCount:    pastSupportBreaks,
	}
}

// GetTrendDirection buckets the current lookback change against the standard
// deviation of recent lookback changes. 1.5 sigma marks a strong trend, 0.5
// sigma a mild one.
func GetTrendDirection(lookbackChanges []float64, currentChange float64) string {
	sd := StdDev(lookbackChanges)
	switch {
	case currentChange > sd*1.5:
		return "strong_uptrend"
	case currentChange > sd*0.5:
		return "mild_uptrend"
	case currentChange < -sd*1.5:
		return "strong_downtrend"
	case currentChange < -sd*0.5:
		return "mild_downtrend"
	}
	return "ranging"
}

// CheckProximity reports whether the close sits near its take-profit boundary,
// upper for LONG, lower for SHORT. The threshold widens with volatility,
// bounded to 5..20 percent of the zone height.
func CheckProximity(side string, close, upper, lower float64, entries []*CandleEntry) string {
	if len(entries) == 0 {
		return "FAR"
	}
	rangeSum := 0.0
	for _, c := range entries {
		rangeSum += c.High - c.Low
	}
	avgRange := rangeSum / float64(len(entries))

	zoneHeight := upper - lower
	threshold := math.Max(5, math.Min(20, avgRange/zoneHeight*100))

	distance := upper - close
	if side != SideLong {
		distance = close - lower
	}
	if distance/zoneHeight*100 <= threshold {
		return "CLOSE"
	}
	return "FAR"
}

// CheckATRVolatility classifies the current session zone's volatility regime
// from the ATR trajectory of its candles. Expanding ATR plus a close outside
// the zone wakes the regime up; contracting ATR with price contained keeps it
// neutral; otherwise the recent ATR momentum decides.
func CheckATRVolatility(entries []*CandleEntry) string {
	var zoneCandles []*CandleEntry
	for _, c := range entries {
		if c.Status != StatusZoneStart && c.Analyzed() && c.Analytics.PriceZone != nil {
			zoneCandles = append(zoneCandles, c)
		}
	}
	if len(zoneCandles) < 2 {
		return "NEUTRAL"
	}

	atrs := make([]float64, 0, len(zoneCandles))
	for _, c := range zoneCandles {
		atrs = append(atrs, c.Analytics.CandleData.ATR)
	}
	if len(atrs) < 2 || atrs[0] == 0 {
		return "NEUTRAL"
	}
	atrChangePct := (atrs[len(atrs)-1] - atrs[0]) / atrs[0] * 100

	zone := *zoneCandles[len(zoneCandles)-1].Analytics.PriceZone
	allInZone := true
	for _, c := range zoneCandles {
		if c.Close < zone.Lower || c.Close > zone.Upper {
			allInZone = false
			break
		}
	}

	if atrChangePct > 15 && !allInZone {
		return "AWAKE"
	}
	if atrChangePct < -10 && allInZone {
		return "NEUTRAL"
	}

	rStart := len(atrs) - 5
	if rStart < 0 {
		rStart = 0
	}
	recent := atrs[rStart:]
	rising := 0
	for i := 1; i < len(recent); i++ {
		if recent[i] > recent[i-1] {
			rising++
		}
	}
	if rising > len(recent)/2 {
		return "AWAKE"
	}
	return "NEUTRAL"
}
