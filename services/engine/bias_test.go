package engine

import (
	"math"
	"testing"
)

func biasSeries(n int) []*CandleEntry {
	candles := make([]Candle, n)
	for i := range candles {
		candles[i] = Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1)*60000 - 1,
			Open:      100, High: 101, Low: 99, Close: 100.5,
			Volume: 10,
		}
	}
	return entriesFromCandles(candles)
}

func TestAnalyzeZoneBiasTargetsZoneBySide(t *testing.T) {
	entries := biasSeries(30)
	support := PriceZone{Lower: 95, Upper: 97}
	resistance := PriceZone{Lower: 104, Upper: 106}

	za := AnalyzeZoneBias("BUY", 100.5, entries, support, resistance, 20, 10, 5, 50)
	if za.ZoneType != "support" {
		t.Fatalf("BUY must target support, got %q", za.ZoneType)
	}
	za = AnalyzeZoneBias("SELL", 100.5, entries, support, resistance, 20, 10, 5, 50)
	if za.ZoneType != "resistance" {
		t.Fatalf("SELL must target resistance, got %q", za.ZoneType)
	}
}

func TestAnalyzeZoneBiasProximityInsideZone(t *testing.T) {
	entries := biasSeries(30)
	support := PriceZone{Lower: 100, Upper: 101}
	resistance := PriceZone{Lower: 104, Upper: 106}

	za := AnalyzeZoneBias("BUY", 100.5, entries, support, resistance, 20, 10, 5, 50)
	if za.ProximityConfidence != 1 {
		t.Fatalf("expected full confidence inside the zone, got %v", za.ProximityConfidence)
	}
	if za.ProximityScore != 100 {
		t.Fatalf("expected proximity score 100, got %v", za.ProximityScore)
	}
}

func TestAnalyzeZoneBiasProximityDecays(t *testing.T) {
	entries := biasSeries(30)
	support := PriceZone{Lower: 90, Upper: 92}
	resistance := PriceZone{Lower: 104, Upper: 106}

	za := AnalyzeZoneBias("BUY", 100.5, entries, support, resistance, 20, 10, 5, 50)
	// distance 8.5 over width 2: exp(-2.5 * 4.25)
	want := math.Exp(-2.5 * 8.5 / 2)
	if math.Abs(za.ProximityConfidence-want) > 1e-9 {
		t.Fatalf("expected decayed confidence %v, got %v", want, za.ProximityConfidence)
	}
}

func TestAnalyzeZoneBiasBullishTrend(t *testing.T) {
	entries := biasSeries(30)
	za := AnalyzeZoneBias("SELL", 100.5, entries,
		PriceZone{Lower: 95, Upper: 97}, PriceZone{Lower: 104, Upper: 106}, 20, 10, 5, 50)
	// Every candle in the fixture closes above its open.
	if za.PastTrend != "bullish" {
		t.Fatalf("expected bullish past trend, got %q", za.PastTrend)
	}
	if za.CurrentCandleReversal {
		t.Fatal("a bull candle must not read as a SELL-side reversal")
	}
}

func TestAnalyzeZoneBiasBounds(t *testing.T) {
	entries := biasSeries(30)
	entries[29].Volume = 500
	entries[29].Close = 103

	za := AnalyzeZoneBias("SELL", 103, entries,
		PriceZone{Lower: 95, Upper: 97}, PriceZone{Lower: 104, Upper: 106}, 20, 10, 5, 50)
	if za.Momentum < 0 || za.Momentum > 100 {
		t.Fatalf("momentum out of bounds: %v", za.Momentum)
	}
	if za.VolumeConfluence < 0.2 || za.VolumeConfluence > 3 {
		t.Fatalf("volume confluence out of bounds: %v", za.VolumeConfluence)
	}
	if za.SignalConfidence < 0 || za.SignalConfidence > 1 {
		t.Fatalf("signal confidence out of bounds: %v", za.SignalConfidence)
	}
	if za.BreakoutProbability < 0 || za.BreakoutProbability > 1 {
		t.Fatalf("breakout probability out of bounds: %v", za.BreakoutProbability)
	}
}

func TestGetTrendDirection(t *testing.T) {
	changes := []float64{-1, 0, 1, -1, 1} // sd ~0.89
	cases := []struct {
		change float64
		want   string
	}{
		{2, "strong_uptrend"},
		{0.6, "mild_uptrend"},
		{0, "ranging"},
		{-0.6, "mild_downtrend"},
		{-2, "strong_downtrend"},
	}
	for _, tc := range cases {
		if got := GetTrendDirection(changes, tc.change); got != tc.want {
			t.Fatalf("change %v: expected %q, got %q", tc.change, tc.want, got)
		}
	}
}

func TestCheckProximity(t *testing.T) {
	entries := biasSeries(10) // avg range 2
	// Zone height 10, threshold max(5, min(20, 2/10*100)) = 20.
	if got := CheckProximity(SideLong, 99, 100, 90, entries); got != "CLOSE" {
		t.Fatalf("expected CLOSE near the upper boundary, got %q", got)
	}
	if got := CheckProximity(SideLong, 92, 100, 90, entries); got != "FAR" {
		t.Fatalf("expected FAR from the upper boundary, got %q", got)
	}
	if got := CheckProximity(SideShort, 91, 100, 90, entries); got != "CLOSE" {
		t.Fatalf("expected CLOSE near the lower boundary, got %q", got)
	}
	if got := CheckProximity(SideLong, 99, 100, 90, nil); got != "FAR" {
		t.Fatalf("expected FAR on empty history, got %q", got)
	}
}

func TestCheckATRVolatility(t *testing.T) {
	if got := CheckATRVolatility(nil); got != "NEUTRAL" {
		t.Fatalf("expected NEUTRAL on empty series, got %q", got)
	}

	zone := &PriceZone{Lower: 95, Upper: 105}
	entries := biasSeries(6)
	for i, e := range entries {
		e.Analytics = &Analytics{
			CandleData: CandleData{ATR: 1 + float64(i)*0.5},
			PriceZone:  zone,
		}
	}
	// ATR up 250% and the last close escapes the zone.
	entries[5].Close = 110
	if got := CheckATRVolatility(entries); got != "AWAKE" {
		t.Fatalf("expected AWAKE on expanding ATR with escape, got %q", got)
	}

	// Contracting ATR with all closes contained stays neutral.
	for i, e := range entries {
		e.Analytics.CandleData.ATR = 3 - float64(i)*0.5
	}
	entries[5].Close = 100.5
	if got := CheckATRVolatility(entries); got != "NEUTRAL" {
		t.Fatalf("expected NEUTRAL on contracting contained ATR, got %q", got)
	}
}
