package engine

import "math"

// AnalyzeZoneInteraction summarizes how price behaved around the session zone
// over the trailing lookback window, ending at the latest candle. The latest
// candle's own relationship to the zone decides the breakout classification:
// open inside with close outside is a breakout start, open and close both
// outside is a continuation.
func AnalyzeZoneInteraction(entries []*CandleEntry, zone PriceZone, lookback int) PriceZoneInteraction {
	current := entries[len(entries)-1]
	start := len(entries) - lookback
	if start < 0 {
		start = 0
	}
	recent := entries[start:]

	mid := (zone.Upper + zone.Lower) / 2
	height := zone.Upper - zone.Lower

	var (
		touchCount, bounceCount, breakoutCount int
		timeInZone, timeOutsideZone            int
		upperTouches, lowerTouches             int
		inZoneRange, outZoneRange              float64
		totalDistanceFromCenter                float64
		breakoutVelocities                     []float64
		approachVelocities                     []float64
		bullishBreakouts, bearishBreakouts     int
		lastInteraction                        string
	)

	for i, c := range recent {
		var prev *CandleEntry
		if i > 0 {
			prev = recent[i-1]
		}
		candleRange := c.High - c.Low
		inside := zone.Contains(c.Close)

		if inside {
			timeInZone++
			inZoneRange += candleRange
			totalDistanceFromCenter += math.Abs(c.Close - mid)
		} else {
			timeOutsideZone++
			outZoneRange += candleRange
		}

		touchesUpper := c.High >= zone.Upper && c.Close < zone.Upper
		touchesLower := c.Low <= zone.Lower && c.Close > zone.Lower
		if touchesUpper || touchesLower {
			touchCount++
			if touchesUpper {
				upperTouches++
			}
			if touchesLower {
				lowerTouches++
			}
			lastInteraction = "touch"

			if prev != nil {
				distToBoundary := zone.Upper - prev.Close
				if touchesLower {
					distToBoundary = prev.Close - zone.Lower
				}
				approachVelocities = append(approachVelocities,
					math.Abs(c.Close-prev.Close)/math.Max(1, distToBoundary))
			}
		}

		if prev != nil {
			if (touchesUpper && c.Close < prev.Close) || (touchesLower && c.Close > prev.Close) {
				bounceCount++
				lastInteraction = "bounce"
			}

			if zone.Contains(prev.Close) && !inside {
				breakoutCount++
				lastInteraction = "breakout"

				distFromZone := zone.Lower - c.Close
				if c.Close > zone.Upper {
					distFromZone = c.Close - zone.Upper
					bullishBreakouts++
				} else {
					bearishBreakouts++
				}
				breakoutVelocities = append(breakoutVelocities, distFromZone/height)
			}
		}
	}

	avgVolInZone := 0.0
	if timeInZone > 0 {
		avgVolInZone = inZoneRange / float64(timeInZone)
	}
	avgVolOutZone := 0.0
	if timeOutsideZone > 0 {
		avgVolOutZone = outZoneRange / float64(timeOutsideZone)
	}
	volatilityRatio := 1.0
	if avgVolOutZone > 0 {
		volatilityRatio = avgVolInZone / avgVolOutZone
	}

	avgBreakoutVelocity := Mean(breakoutVelocities)
	avgApproachVelocity := Mean(approachVelocities)

	momentumOnBreakout := ""
	switch {
	case avgBreakoutVelocity > 0.5:
		momentumOnBreakout = "strong"
	case avgBreakoutVelocity > 0.2:
		momentumOnBreakout = "moderate"
	case breakoutCount > 0:
		momentumOnBreakout = "weak"
	}

	pressureDirection := "neutral"
	if float64(bullishBreakouts) > float64(bearishBreakouts)*1.5 {
		pressureDirection = "bullish"
	} else if float64(bearishBreakouts) > float64(bullishBreakouts)*1.5 {
		pressureDirection = "bearish"
	}

	timeInZoneRatio := 0.0
	if total := timeInZone + timeOutsideZone; total > 0 {
		timeInZoneRatio = float64(timeInZone) / float64(total)
	}
	strengthScore := clamp(
		timeInZoneRatio*50+
			math.Min(float64(touchCount)*5, 30)-
			math.Min(float64(breakoutCount)*15, 40),
		0, 100)

	distancePctOfZone := math.Abs(current.Close-mid) / height * 100
	distanceToMid := "far"
	switch {
	case distancePctOfZone < 5:
		distanceToMid = "very_close"
	case distancePctOfZone < 15:
		distanceToMid = "close"
	case distancePctOfZone < 30:
		distanceToMid = "mid"
	}

	lastBreakoutChange := 0.0
	if lastInteraction == "breakout" {
		if current.Close > zone.Upper {
			lastBreakoutChange = (current.Close - zone.Upper) / zone.Upper * 100
		} else if current.Close < zone.Lower {
			lastBreakoutChange = (current.Close - zone.Lower) / zone.Lower * 100
		}
	}

	extremePoint := ""
	if upperTouches > lowerTouches {
		extremePoint = "upper"
	} else if lowerTouches > upperTouches {
		extremePoint = "lower"
	}

	breakoutType := ""
	var startScore *BreakoutStartScore
	openInside := zone.Contains(current.Open)
	closeOutside := current.Close > zone.Upper || current.Close < zone.Lower
	openOutside := current.Open > zone.Upper || current.Open < zone.Lower
	if openInside && closeOutside {
		breakoutType = "breakout_start"
		s := scoreBreakoutStart(current, recent, zone, height, entries)
		startScore = &s
	} else if openOutside && closeOutside {
		breakoutType = "breakout_cont"
	}

	avgDistanceFromCenter := 0.0
	if len(recent) > 0 {
		avgDistanceFromCenter = totalDistanceFromCenter / float64(len(recent))
	}

	return PriceZoneInteraction{
		TouchCount:            touchCount,
		BounceCount:           bounceCount,
		BreakoutCount:         breakoutCount,
		TimeInZone:            timeInZone,
		TimeOutsideZone:       timeOutsideZone,
		AvgDistanceFromCenter: avgDistanceFromCenter,
		ExtremePoint:          extremePoint,
		StrengthScore:         math.Round(strengthScore),
		LastInteraction:       lastInteraction,
		VolatilityInZone:      round2(avgVolInZone),
		VolatilityOutsideZone: round2(avgVolOutZone),
		VolatilityRatio:       round2(volatilityRatio),
		BreakoutVelocity:      round2(avgBreakoutVelocity),
		ApproachVelocity:      round2(avgApproachVelocity),
		MomentumOnBreakout:    momentumOnBreakout,
		PressureDirection:     pressureDirection,
		DistanceToMid:         distanceToMid,
		LastBreakoutChange:    round2(lastBreakoutChange),
		BreakoutType:          breakoutType,
		BreakoutStartScore:    startScore,
	}
}

// scoreBreakoutStart grades the first candle closing outside the zone. The
// sustainability sub-score includes a deliberate look-ahead: when candles
// exist after the current one, continuation over the next three adds up to
// the 0-25 cap. During a forward walk the current candle is the last one, so
// the look-ahead contributes nothing and the walk stays causal.
func scoreBreakoutStart(current *CandleEntry, recent []*CandleEntry, zone PriceZone, height float64, all []*CandleEntry) BreakoutStartScore {
	bodySize := math.Abs(current.Close - current.Open)
	totalRange := current.High - current.Low
	bodyRatio := 0.0
	if totalRange > 0 {
		bodyRatio = bodySize / totalRange
	}
	penetration := zone.Lower - current.Close
	if current.Close > zone.Upper {
		penetration = current.Close - zone.Upper
	}
	penetrationPct := penetration / zone.Upper * 100
	momentumScore := math.Min(25, penetrationPct/2+bodyRatio*10)

	continuationScore := 0.0
	currentIndex := -1
	for i := len(all) - 1; i >= 0; i-- {
		if all[i] == current {
			currentIndex = i
			break
		}
	}
	if currentIndex != -1 && currentIndex < len(all)-1 {
		end := currentIndex + 4
		if end > len(all) {
			end = len(all)
		}
		continues := 0
		up := current.Close > zone.Upper
		for _, next := range all[currentIndex+1 : end] {
			if up && next.Close > current.Close {
				continues++
			} else if !up && next.Close < current.Close {
				continues++
			}
		}
		switch {
		case continues >= 2:
			continuationScore = 15
		case continues == 1:
			continuationScore = 8
		}
	}

	sustainabilityScore := 12.0
	if len(recent) >= 2 {
		prev := recent[len(recent)-2]
		if prev.Analyzed() && prev.Analytics.ZoneInteraction != nil {
			if dir := prev.Analytics.ZoneInteraction.PressureDirection; dir != "neutral" {
				consistent := (current.Close > zone.Upper && dir == "bullish") ||
					(current.Close < zone.Lower && dir == "bearish")
				if consistent {
					sustainabilityScore = 22
				} else {
					sustainabilityScore = 8
				}
			}
		}
	}
	sustainabilityScore = math.Min(25, sustainabilityScore+continuationScore)

	volumeScore := math.Min(20, penetration/height*40)

	wick := current.Close - current.Low
	if current.Close > zone.Upper {
		wick = current.High - current.Close
	}
	rejectionScore := math.Max(0, 15-wick/totalRange*25)

	composite := momentumScore + sustainabilityScore + volumeScore + rejectionScore

	recommendation := "skip"
	switch {
	case composite >= 70:
		recommendation = "strong_buy"
	case composite >= 55:
		recommendation = "moderate_buy"
	case composite >= 40:
		recommendation = "weak_buy"
	}

	return BreakoutStartScore{
		MomentumScore:       round2(momentumScore),
		SustainabilityScore: round2(sustainabilityScore),
		VolumeProfile:       round2(volumeScore),
		RejectionStrength:   round2(rejectionScore),
		CompositeScore:      round2(composite),
		Recommendation:      recommendation,
	}
}
