package engine

import "testing"

func TestDetectOverboughtOversoldBullRun(t *testing.T) {
	// 20 straight bull candles with a positive VWAP deviation and aligned
	// volume must push the exhaustion score firmly positive.
	candles := make([]Candle, 20)
	for i := range candles {
		candles[i] = Candle{Open: 100 + float64(i), High: 102 + float64(i), Low: 99 + float64(i), Close: 101 + float64(i), Volume: 10}
	}
	entries := entriesFromCandles(candles)

	va := VolumeAnalysis{
		VWAPDeviationPct:   1.5,
		CorrVolumeMomentum: 0.5,
		ZScore:             2.0,
		DeltaAlignment:     false,
	}
	za := ZoneAnalysis{VolatilityScore: 0.5}

	ob := DetectOverboughtOversold(va, za, entries, 20)
	if ob.Score <= 15 {
		t.Fatalf("expected a firmly positive score, got %v", ob.Score)
	}
	if len(ob.Signals) == 0 {
		t.Fatal("expected explanatory signals")
	}
	if ob.Confidence <= 0 || ob.Confidence > 1 {
		t.Fatalf("confidence out of bounds: %v", ob.Confidence)
	}
}

func TestDetectOverboughtOversoldNeutral(t *testing.T) {
	candles := make([]Candle, 20)
	for i := range candles {
		close := 100.5
		if i%2 == 1 {
			close = 99.5
		}
		candles[i] = Candle{Open: 100, High: 101, Low: 99, Close: close, Volume: 10}
	}
	entries := entriesFromCandles(candles)

	ob := DetectOverboughtOversold(VolumeAnalysis{}, ZoneAnalysis{VolatilityScore: 0.5}, entries, 20)
	if ob.ExtremeLevel != "neutral" {
		t.Fatalf("expected neutral, got %q (score %v)", ob.ExtremeLevel, ob.Score)
	}
}

func TestDetectOverboughtOversoldScoreBounds(t *testing.T) {
	entries := entriesFromCandles(make([]Candle, 20))
	va := VolumeAnalysis{VWAPDeviationPct: -5, CorrVolumeMomentum: -0.9, ZScore: -4, DeltaAlignment: false}
	ob := DetectOverboughtOversold(va, ZoneAnalysis{VolatilityScore: 0.1}, entries, 20)
	if ob.Score < -100 || ob.Score > 100 {
		t.Fatalf("score out of bounds: %v", ob.Score)
	}
	if ob.RejectionProbability < 0 || ob.RejectionProbability > 1 {
		t.Fatalf("rejection probability out of bounds: %v", ob.RejectionProbability)
	}
}
