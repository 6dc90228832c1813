package engine

import "math"

// ComputeVolumeAnalysis estimates the buy/sell split of the latest candle's
// volume from the close-to-close delta, plus VWAP deviation, a rolling volume
// z-score and a volume-momentum correlation over the lookback window.
// Degrades to the zero value when fewer than two candles are available.
func ComputeVolumeAnalysis(entries []*CandleEntry, currentPrice float64, lookback int) VolumeAnalysis {
	if len(entries) < 2 {
		return VolumeAnalysis{}
	}

	last := entries[len(entries)-1]
	prev := entries[len(entries)-2]

	deltaPrice := last.Close - prev.Close
	totalVolume := last.Volume
	deltaRatio := 0.0
	if deltaPrice != 0 && last.Close != 0 {
		deltaRatio = deltaPrice / last.Close
	}

	// Rising close attributes more of the volume to buys, scaled by delta
	// magnitude and capped at a full 100/0 split.
	buyVolume := totalVolume * 0.4
	if deltaPrice > 0 {
		buyVolume = totalVolume * (0.5 + math.Min(math.Abs(deltaRatio)*10, 0.5))
	}
	sellVolume := totalVolume - buyVolume
	deltaVolume := buyVolume - sellVolume

	start := len(entries) - lookback
	if start < 0 {
		start = 0
	}
	window := entries[start:]

	volumes := make([]float64, len(window))
	for i, c := range window {
		volumes[i] = c.Volume
	}
	avgVolume := Mean(volumes)
	zScore := ZScore(last.Volume, volumes)

	vwap := (last.High + last.Low + last.Close) / 3
	vwapDeviationPct := 0.0
	if vwap != 0 {
		vwapDeviationPct = (currentPrice - vwap) / vwap * 100
	}

	// Close-to-close returns within the window; first slot is 0 by
	// convention so returns and volumes stay index-aligned.
	returns := make([]float64, len(window))
	for i := 1; i < len(window); i++ {
		if window[i-1].Close != 0 {
			returns[i] = (window[i].Close - window[i-1].Close) / window[i-1].Close
		}
	}
	meanReturn := Mean(returns)

	cov, varR, varV := 0.0, 0.0, 0.0
	for i := range returns {
		dr := returns[i] - meanReturn
		dv := volumes[i] - avgVolume
		cov += dr * dv
		varR += dr * dr
		varV += dv * dv
	}
	corr := 0.0
	if denom := math.Sqrt(varR * varV); denom != 0 {
		corr = cov / denom
	}

	volumePressure := 0.0
	for i := 1; i < len(window); i++ {
		volumePressure += (window[i].Close - window[i-1].Close) * window[i].Volume
	}

	return VolumeAnalysis{
		TotalVolume:        totalVolume,
		BuyVolume:          buyVolume,
		SellVolume:         sellVolume,
		DeltaVolume:        deltaVolume,
		DeltaRatio:         deltaRatio,
		AvgVolumeLookback:  avgVolume,
		ZScore:             zScore,
		SpikeFlag:          math.Abs(zScore) > 1,
		AbsorptionIndex:    totalVolume / math.Max(math.Abs(deltaPrice), 0.000001),
		DeltaAlignment:     deltaPrice*deltaVolume >= 0,
		CorrVolumeMomentum: corr,
		VWAP:               vwap,
		VWAPDeviationPct:   vwapDeviationPct,
		VolumePressure:     volumePressure,
	}
}
