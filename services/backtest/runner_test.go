package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"zone-backtest/services/config"
	"zone-backtest/services/engine"
	"zone-backtest/services/siglog"
	"zone-backtest/services/store"
)

type stubKlines struct {
	candles []engine.Candle
	err     error
}

func (s *stubKlines) GetRecentKlines(ctx context.Context, symbol, interval string, limit int) ([]engine.Candle, error) {
	return s.candles, s.err
}

type stubLeverage struct{}

func (stubLeverage) GetMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	return 10, nil
}

type stubPricer struct{}

func (stubPricer) CalculateTpSl(ctx context.Context, margin float64, symbol, side string, price, targetTpRoi, targetSlRoi float64) (engine.TpSl, error) {
	return engine.TpSl{TpPrice: price * 1.05, SlPrice: price * 0.95}, nil
}

func flatSeries(n int) []engine.Candle {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	candles := make([]engine.Candle, n)
	for i := range candles {
		candles[i] = engine.Candle{
			OpenTime: base + int64(i)*300_000,
			Open:     100, High: 101, Low: 99, Close: 100,
			Volume: 10,
			Closed: true,
		}
	}
	return candles
}

func testConfig(maxCandles int) config.Config {
	return config.Config{
		Interval:    "5m",
		MaxCandles:  maxCandles,
		SRPeriod:    10,
		Margin:      10,
		TargetTpRoi: 100,
		TargetSlRoi: -80,
	}
}

func TestInitializeEntriesSkipsShortHistory(t *testing.T) {
	r := NewRunner(testConfig(50), &stubKlines{candles: flatSeries(30)}, stubPricer{}, stubLeverage{},
		store.New(), siglog.NewLogger(), nil, nil, nil)

	entries, err := r.InitializeEntries(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected partial history to be skipped, got %d entries", len(entries))
	}
}

func TestInitializeEntriesSeedsStore(t *testing.T) {
	st := store.New()
	r := NewRunner(testConfig(50), &stubKlines{candles: flatSeries(50)}, stubPricer{}, stubLeverage{},
		st, siglog.NewLogger(), nil, nil, nil)

	entries, err := r.InitializeEntries(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(entries))
	}
	// The still-forming latest candle stays out of the live series.
	if got := len(st.Klines("BTCUSDT")); got != 49 {
		t.Fatalf("expected 49 stored candles, got %d", got)
	}
}

func TestRunWithoutRulesProducesNoPositions(t *testing.T) {
	sl := siglog.NewLogger()
	r := NewRunner(testConfig(50), &stubKlines{candles: flatSeries(50)}, stubPricer{}, stubLeverage{},
		store.New(), sl, nil, nil, nil)

	if err := r.Run(context.Background(), "BTCUSDT", "job-1"); err != nil {
		t.Fatal(err)
	}
	if logs := sl.BacktestLogs(); len(logs) != 0 {
		t.Fatalf("expected no positions, got %d", len(logs))
	}
}

func TestStartReportsFailure(t *testing.T) {
	r := NewRunner(testConfig(50), &stubKlines{err: errors.New("exchange down")}, stubPricer{}, stubLeverage{},
		store.New(), siglog.NewLogger(), nil, nil, nil)

	job, err := r.Start("BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, ok := r.Job(job.ID)
		if !ok {
			t.Fatal("job disappeared")
		}
		if snap.State != JobRunning {
			if snap.State != JobFailed || snap.Error == "" {
				t.Fatalf("expected FAILED with error, got %+v", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRiskFilterCaps(t *testing.T) {
	cfg := testConfig(50)
	cfg.RiskFilterEnabled = true
	cfg.RiskMaxSlLoss = 20
	cfg.RiskMaxSlLossMult = 3

	filter := riskFilter(cfg)
	entry := &engine.CandleEntry{Margin: 10}

	if filter(entry, -5) {
		t.Fatal("loss under both caps must pass")
	}
	if !filter(entry, -25) {
		t.Fatal("loss above the absolute cap must be vetoed")
	}
	entry.Margin = 2
	if !filter(entry, -10) {
		t.Fatal("loss above the margin multiple must be vetoed")
	}
	if filter(entry, 5) {
		t.Fatal("a profitable stop must never be vetoed")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	r := NewRunner(testConfig(50), &stubKlines{}, stubPricer{}, stubLeverage{},
		store.New(), siglog.NewLogger(), nil, nil, nil)
	if r.Cancel("nope") {
		t.Fatal("expected cancel of unknown job to report false")
	}
}
