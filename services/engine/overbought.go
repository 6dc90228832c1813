package engine

import (
	"fmt"
	"math"
)

// DetectOverboughtOversold combines six weighted components into a single
// -100..+100 exhaustion score. Component weights and thresholds are tuned
// values; do not normalize them against each other.
func DetectOverboughtOversold(va VolumeAnalysis, za ZoneAnalysis, entries []*CandleEntry, lookback int) OverboughtOversoldAnalysis {
	var signals []string

	// Component 1: VWAP deviation. Extreme deviation from the volume-
	// weighted average suggests exhaustion.
	vwapDeviation := math.Abs(va.VWAPDeviationPct)
	vwapComponent := 0.0
	switch {
	case vwapDeviation > 1.0:
		vwapComponent = 40
		if va.VWAPDeviationPct < 0 {
			vwapComponent = -40
		}
		signals = append(signals, fmt.Sprintf("Extreme VWAP deviation: %.2f%%", va.VWAPDeviationPct))
	case vwapDeviation > 0.5:
		vwapComponent = 25
		if va.VWAPDeviationPct < 0 {
			vwapComponent = -25
		}
		signals = append(signals, fmt.Sprintf("Notable VWAP deviation: %.2f%%", va.VWAPDeviationPct))
	case vwapDeviation > 0.2:
		vwapComponent = 12
		if va.VWAPDeviationPct < 0 {
			vwapComponent = -12
		}
		signals = append(signals, fmt.Sprintf("Minor VWAP deviation: %.2f%%", va.VWAPDeviationPct))
	}

	// Component 2: volume-momentum correlation. A move without volume
	// behind it works against the extreme; volume confirmation reinforces.
	volumeMomentumComponent := 0.0
	switch {
	case va.CorrVolumeMomentum < -0.3:
		volumeMomentumComponent = 30
		if vwapComponent > 0 {
			volumeMomentumComponent = -30
		}
		signals = append(signals, fmt.Sprintf("Volume-Momentum divergence (%.3f): Weak conviction", va.CorrVolumeMomentum))
	case va.CorrVolumeMomentum > 0.3:
		volumeMomentumComponent = -20
		if vwapComponent > 0 {
			volumeMomentumComponent = 20
		}
		signals = append(signals, fmt.Sprintf("Volume-Momentum alignment (%.3f): Strong conviction", va.CorrVolumeMomentum))
	default:
		signals = append(signals, fmt.Sprintf("Volume-Momentum uncorrelated (%.3f): Neutral signal", va.CorrVolumeMomentum))
	}

	// Component 3: momentum z-score extremity.
	momentumComponent := 0.0
	switch {
	case math.Abs(va.ZScore) > 2.5:
		momentumComponent = 35
		state := "Overbought"
		if va.ZScore < 0 {
			momentumComponent = -35
			state = "Oversold"
		}
		signals = append(signals, fmt.Sprintf("Extreme momentum spike (z=%.2f): %s", va.ZScore, state))
	case math.Abs(va.ZScore) > 1.5:
		momentumComponent = 20
		if va.ZScore < 0 {
			momentumComponent = -20
		}
		signals = append(signals, fmt.Sprintf("Notable momentum (z=%.2f)", va.ZScore))
	case va.SpikeFlag:
		momentumComponent = 10
		if va.ZScore < 0 {
			momentumComponent = -10
		}
		signals = append(signals, "Volume spike detected but moderate momentum")
	}

	// Component 4: delta alignment. Price direction diverging from the
	// buy/sell pressure split hints at exhaustion.
	alignmentComponent := 5.0
	if !va.DeltaAlignment {
		alignmentComponent = 15
		if vwapComponent > 0 {
			alignmentComponent = -15
		}
		signals = append(signals, "Delta misalignment: Price and volume pressure diverging")
	}

	// Component 5: trend exhaustion. 75%+ candles one way without pullback.
	exhaustionComponent := 0.0
	start := len(entries) - lookback
	if start < 0 {
		start = 0
	}
	recent := entries[start:]
	bullish, bearish := 0, 0
	for _, c := range recent {
		if c.Close > c.Open {
			bullish++
		} else if c.Close < c.Open {
			bearish++
		}
	}
	if float64(bullish) > float64(lookback)*0.75 {
		exhaustionComponent = math.Min(30, float64(bullish)/float64(lookback)*50)
		signals = append(signals, fmt.Sprintf("Bullish exhaustion: %d/%d candles up", bullish, lookback))
	} else if float64(bearish) > float64(lookback)*0.75 {
		exhaustionComponent = math.Min(-30, -float64(bearish)/float64(lookback)*50)
		signals = append(signals, fmt.Sprintf("Bearish exhaustion: %d/%d candles down", bearish, lookback))
	}

	// Component 6: volatility contraction after an extreme move sets up a
	// reversal; high volatility mildly supports continuation.
	volatilityComponent := 0.0
	if za.VolatilityScore < 0.2 && math.Abs(vwapComponent) > 20 {
		volatilityComponent = 10
		if vwapComponent > 0 {
			volatilityComponent = -10
		}
		signals = append(signals, fmt.Sprintf("Low volatility (%.2f) after extreme move: Reversal likely", za.VolatilityScore))
	} else if za.VolatilityScore > 0.8 {
		volatilityComponent = 5
	}

	score := vwapComponent*0.25 +
		volumeMomentumComponent*0.20 +
		momentumComponent*0.20 +
		alignmentComponent*0.15 +
		exhaustionComponent*0.15 +
		volatilityComponent*0.05
	score = clamp(score, -100, 100)

	var level string
	switch {
	case score > 60:
		level = "extreme_overbought"
	case score > 30:
		level = "overbought"
	case score > -30:
		level = "neutral"
	case score > -60:
		level = "oversold"
	default:
		level = "extreme_oversold"
	}

	rejection := math.Abs(score) / 100 * 0.6
	if math.Abs(va.CorrVolumeMomentum) < 0.2 {
		rejection += 0.25
	}
	if za.VolatilityScore < 0.3 {
		rejection += 0.15
	}

	return OverboughtOversoldAnalysis{
		ExtremeLevel:         level,
		Score:                score,
		Signals:              signals,
		Confidence:           math.Min(1, float64(len(signals))/5),
		RejectionProbability: math.Min(1, rejection),
	}
}
