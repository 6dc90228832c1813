package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type stubPricer struct {
	tp, sl float64
	err    error
	calls  int
}

func (p *stubPricer) CalculateTpSl(ctx context.Context, margin float64, symbol, side string, price float64, tpRoi, slRoi float64) (TpSl, error) {
	p.calls++
	if p.err != nil {
		return TpSl{}, p.err
	}
	return TpSl{TpPrice: p.tp, SlPrice: p.sl}, nil
}

// simSeries builds a walkable series: 5m candles crossing the 00:00 UTC
// session boundary at index 2, with frozen S/R bands on every entry.
func simSeries(candles []Candle) []*CandleEntry {
	base := time.Date(2025, 3, 1, 23, 50, 0, 0, time.UTC)
	entries := NewEntries("TESTUSDT", candles)
	for i, e := range entries {
		e.OpenTime = base.Add(time.Duration(i) * 5 * time.Minute).UnixMilli()
		e.CloseTime = e.OpenTime + 5*time.Minute.Milliseconds() - 1
		e.Support = &PriceZone{Lower: 80, Upper: 85}
		e.Resistance = &PriceZone{Lower: 120, Upper: 125}
	}
	return entries
}

func entryAtRule(fireTime int64) Rule {
	return Rule{Name: "TEST_LONG", Apply: func(ctx *RuleContext) {
		if ctx.Candle.OpenTime == fireTime {
			ctx.Data.ConditionMet = "TEST_LONG"
			ctx.Candle.Side = SideLong
		}
	}}
}

func flatCandle() Candle {
	return Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
}

func TestSimulatorLongLossAtStop(t *testing.T) {
	candles := make([]Candle, 8)
	for i := range candles {
		candles[i] = flatCandle()
	}
	candles[4] = Candle{Open: 100, High: 101, Low: 94, Close: 96, Volume: 10}
	entries := simSeries(candles)

	pricer := &stubPricer{tp: 105, sl: 95}
	sim := &Simulator{
		Symbol:      "TESTUSDT",
		Margin:      10,
		TargetTpRoi: 100,
		TargetSlRoi: -80,
		MaxLeverage: 2,
		Location:    time.UTC,
		Rules:       []Rule{entryAtRule(entries[3].OpenTime)},
		Pricer:      pricer,
	}
	if err := sim.Run(context.Background(), entries, len(entries)-1); err != nil {
		t.Fatal(err)
	}

	entry := entries[3]
	if entry.Side != SideLong || entry.Status != OutcomeLoss {
		t.Fatalf("expected a closed LONG loss, got side %q status %q", entry.Side, entry.Status)
	}
	if entries[4].Status != "LONG_LOSS" {
		t.Fatalf("expected exit candle status LONG_LOSS, got %q", entries[4].Status)
	}
	// -10% leveraged on 10 margin, minus 0.01 exit fee.
	if math.Abs(entry.PnL-(-1.01)) > 1e-9 {
		t.Fatalf("expected pnl -1.01 on the entry candle, got %v", entry.PnL)
	}
	if entry.Margin != 10 || entry.Leverage != 2 {
		t.Fatalf("expected default margin and max leverage, got %v / %v", entry.Margin, entry.Leverage)
	}
	if entry.EntryFee != TakerFee(10, 2) {
		t.Fatalf("unexpected entry fee %v", entry.EntryFee)
	}
	if entry.Duration <= 0 {
		t.Fatal("expected a positive holding duration")
	}
	if pricer.calls != 1 {
		t.Fatalf("expected one pricing call, got %d", pricer.calls)
	}
	for i, e := range entries {
		if e.Status == StatusOpen {
			t.Fatalf("candle %d leaked an OPEN position status", i)
		}
	}
}

func TestSimulatorMidWhenBothCrossed(t *testing.T) {
	candles := make([]Candle, 8)
	for i := range candles {
		candles[i] = flatCandle()
	}
	candles[4] = Candle{Open: 100, High: 106, Low: 94, Close: 100, Volume: 10}
	entries := simSeries(candles)

	sim := &Simulator{
		Symbol:      "TESTUSDT",
		Margin:      10,
		MaxLeverage: 2,
		Location:    time.UTC,
		Rules:       []Rule{entryAtRule(entries[3].OpenTime)},
		Pricer:      &stubPricer{tp: 105, sl: 95},
	}
	if err := sim.Run(context.Background(), entries, len(entries)-1); err != nil {
		t.Fatal(err)
	}

	entry := entries[3]
	if entry.Status != OutcomeMid {
		t.Fatalf("expected MID, got %q", entry.Status)
	}
	if entries[4].Status != "LONG_MID" {
		t.Fatalf("expected exit candle status LONG_MID, got %q", entries[4].Status)
	}
	// Fill order inside the candle is unknowable: no PnL attribution.
	if entry.PnL != 0 {
		t.Fatalf("expected no pnl on MID, got %v", entry.PnL)
	}
}

func TestSimulatorMarksToCloseThenWins(t *testing.T) {
	candles := make([]Candle, 8)
	for i := range candles {
		candles[i] = flatCandle()
	}
	candles[4] = Candle{Open: 100, High: 104, Low: 96, Close: 102, Volume: 10}
	candles[5] = Candle{Open: 102, High: 106, Low: 101, Close: 104, Volume: 10}
	entries := simSeries(candles)

	sim := &Simulator{
		Symbol:      "TESTUSDT",
		Margin:      10,
		MaxLeverage: 2,
		Location:    time.UTC,
		Rules:       []Rule{entryAtRule(entries[3].OpenTime)},
		Pricer:      &stubPricer{tp: 105, sl: 95},
	}
	if err := sim.Run(context.Background(), entries, len(entries)-1); err != nil {
		t.Fatal(err)
	}

	if entries[4].Status != StatusOpen {
		t.Fatalf("expected intermediate candle to carry OPEN, got %q", entries[4].Status)
	}
	entry := entries[3]
	if entry.Status != OutcomeWon {
		t.Fatalf("expected WON, got %q", entry.Status)
	}
	if entries[5].Status != "LONG_WON" {
		t.Fatalf("expected exit candle status LONG_WON, got %q", entries[5].Status)
	}
	// +10% leveraged on 10 margin, minus 0.01 exit fee.
	if math.Abs(entry.PnL-0.99) > 1e-9 {
		t.Fatalf("expected pnl 0.99, got %v", entry.PnL)
	}
}

func TestSimulatorPricingFailureRevertsEntry(t *testing.T) {
	candles := make([]Candle, 8)
	for i := range candles {
		candles[i] = flatCandle()
	}
	entries := simSeries(candles)

	sim := &Simulator{
		Symbol:      "TESTUSDT",
		Margin:      10,
		MaxLeverage: 2,
		Location:    time.UTC,
		Rules:       []Rule{entryAtRule(entries[3].OpenTime)},
		Pricer:      &stubPricer{err: errors.New("backend down")},
	}
	if err := sim.Run(context.Background(), entries, len(entries)-1); err != nil {
		t.Fatal(err)
	}

	entry := entries[3]
	if entry.Side != "" || entry.Status != "" || entry.TpPrice != 0 {
		t.Fatalf("expected a fully reverted entry, got %+v", entry)
	}
	if !entry.Analyzed() {
		t.Fatal("the walk must keep annotating after a pricing failure")
	}
	if !entries[len(entries)-2].Analyzed() {
		t.Fatal("the walk must continue past the failed entry")
	}
}

func TestSimulatorRiskFilterIgnoresEntry(t *testing.T) {
	candles := make([]Candle, 8)
	for i := range candles {
		candles[i] = flatCandle()
	}
	entries := simSeries(candles)

	sim := &Simulator{
		Symbol:      "TESTUSDT",
		Margin:      10,
		MaxLeverage: 2,
		Location:    time.UTC,
		Rules:       []Rule{entryAtRule(entries[3].OpenTime)},
		Pricer:      &stubPricer{tp: 105, sl: 95},
		RiskFilter:  func(entry *CandleEntry, estimatedSlPnl float64) bool { return true },
	}
	if err := sim.Run(context.Background(), entries, len(entries)-1); err != nil {
		t.Fatal(err)
	}

	entry := entries[3]
	if entry.Status != StatusIgnored {
		t.Fatalf("expected IGNORED, got %q", entry.Status)
	}
	if entry.Side != "" {
		t.Fatalf("expected no live side after rejection, got %q", entry.Side)
	}
	if d := entry.Data(); d == nil || d.ConditionMet != "IGNORED" {
		t.Fatal("expected conditionMet IGNORED on the feature data")
	}
}

func TestSimulatorCancellation(t *testing.T) {
	candles := make([]Candle, 8)
	for i := range candles {
		candles[i] = flatCandle()
	}
	entries := simSeries(candles)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := &Simulator{Symbol: "TESTUSDT", Margin: 10, MaxLeverage: 2, Location: time.UTC}
	if err := sim.Run(ctx, entries, len(entries)-1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSimulatorSessionZoneRoll(t *testing.T) {
	candles := make([]Candle, 8)
	for i := range candles {
		candles[i] = flatCandle()
	}
	entries := simSeries(candles)

	sim := &Simulator{Symbol: "TESTUSDT", Margin: 10, MaxLeverage: 2, Location: time.UTC}
	if err := sim.Run(context.Background(), entries, len(entries)-1); err != nil {
		t.Fatal(err)
	}

	boundary := entries[2] // 00:00 UTC
	if boundary.Status != StatusZoneStart {
		t.Fatalf("expected ZONE_START at the boundary, got %q", boundary.Status)
	}
	if d := boundary.Data(); d == nil || !d.IsNewZone {
		t.Fatal("expected IsNewZone on the boundary candle")
	}
	if boundary.Analytics.PriceZone == nil {
		t.Fatal("expected an active zone on the boundary candle")
	}
	// Later candles share the same zone pointer until the next boundary.
	if entries[5].Analytics.PriceZone != boundary.Analytics.PriceZone {
		t.Fatal("expected the session zone pointer to be shared")
	}
	if entries[1].Analytics.PriceZone != nil {
		t.Fatal("candles before the first boundary must carry no zone")
	}
}
