package engine

import (
	"testing"
	"time"
)

func TestGeneratePriceZone(t *testing.T) {
	entries := entriesFromCandles([]Candle{
		{Open: 100, High: 112, Low: 98, Close: 110},
	})
	zone := GeneratePriceZone(entries)
	// Body range padded outward by half the wick excursion.
	if zone.Upper != 111 {
		t.Fatalf("expected upper 111, got %v", zone.Upper)
	}
	if zone.Lower != 99 {
		t.Fatalf("expected lower 99, got %v", zone.Lower)
	}
	if zone.Mid != 105 {
		t.Fatalf("expected mid 105, got %v", zone.Mid)
	}
}

func TestGeneratePriceZoneEmpty(t *testing.T) {
	zone := GeneratePriceZone(nil)
	if zone != (PriceZone{}) {
		t.Fatalf("expected zero zone, got %+v", zone)
	}
}

func TestSupportNeverAboveResistance(t *testing.T) {
	// Deterministic pseudo-random walk.
	seed := int64(12345)
	next := func() float64 {
		seed = (seed*6364136223846793005 + 1442695040888963407) % (1 << 31)
		if seed < 0 {
			seed = -seed
		}
		return float64(seed%2000)/1000 - 1 // [-1, 1)
	}

	price := 100.0
	candles := make([]Candle, 120)
	for i := range candles {
		open := price
		price += next()
		h := open
		if price > h {
			h = price
		}
		l := open
		if price < l {
			l = price
		}
		candles[i] = Candle{Open: open, High: h + 0.2, Low: l - 0.2, Close: price}
	}
	entries := entriesFromCandles(candles)

	for end := 10; end <= len(entries); end++ {
		support, resistance := ComputeSupportResistance(entries[:end], 50)
		if support.Upper > resistance.Lower {
			t.Fatalf("window %d: support upper %v above resistance lower %v",
				end, support.Upper, resistance.Lower)
		}
	}
}

func TestComputeSupportResistanceExcludesLatest(t *testing.T) {
	candles := make([]Candle, 30)
	for i := range candles {
		candles[i] = Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}
	entries := entriesFromCandles(candles)
	_, baseline := ComputeSupportResistance(entries, 20)

	// A latest-candle spike must not move the bands.
	candles[29] = Candle{Open: 100, High: 500, Low: 99, Close: 480}
	entries = entriesFromCandles(candles)
	_, spiked := ComputeSupportResistance(entries, 20)

	if baseline != spiked {
		t.Fatalf("resistance moved with the still-forming candle: %+v vs %+v", baseline, spiked)
	}
}

func TestInitializeSupportResistance(t *testing.T) {
	candles := make([]Candle, 60)
	for i := range candles {
		candles[i] = Candle{
			OpenTime: int64(i),
			Open:     100 + float64(i%5),
			High:     102 + float64(i%5),
			Low:      98 + float64(i%5),
			Close:    101 + float64(i%5),
		}
	}
	entries := entriesFromCandles(candles)
	InitializeSupportResistance(entries, 20, 30)

	for i := len(entries) - 21; i < len(entries)-1; i++ {
		if entries[i].Support == nil || entries[i].Resistance == nil {
			t.Fatalf("entry %d missing frozen bands", i)
		}
		if entries[i].Support.Upper > entries[i].Resistance.Lower {
			t.Fatalf("entry %d has overlapping bands", i)
		}
	}
	if entries[0].Support != nil {
		t.Fatal("entries outside the init window must stay bare")
	}
}

func TestIsSessionBoundary(t *testing.T) {
	cases := []struct {
		ts   time.Time
		want bool
	}{
		{time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 1, 6, 5, 0, 0, time.UTC), false},
		{time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		if got := IsSessionBoundary(tc.ts.UnixMilli(), time.UTC); got != tc.want {
			t.Fatalf("%v: expected %v, got %v", tc.ts, tc.want, got)
		}
	}
}

func TestPriceZoneContainsStrict(t *testing.T) {
	zone := PriceZone{Lower: 100, Upper: 110}
	if zone.Contains(100) || zone.Contains(110) {
		t.Fatal("boundaries must not count as inside")
	}
	if !zone.Contains(105) {
		t.Fatal("expected 105 inside")
	}
}

func TestPriceZoneMidpointSentinel(t *testing.T) {
	zone := PriceZone{Lower: 100, Upper: 110}
	if zone.Midpoint() != 105 {
		t.Fatalf("expected recomputed midpoint 105, got %v", zone.Midpoint())
	}
	zone.Mid = 107
	if zone.Midpoint() != 107 {
		t.Fatalf("expected stored midpoint 107, got %v", zone.Midpoint())
	}
}
