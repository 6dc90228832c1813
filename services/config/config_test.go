package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interval != "5m" || cfg.MaxCandles != 400 || cfg.SRPeriod != 50 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TargetTpRoi != 100 || cfg.TargetSlRoi != -80 {
		t.Fatalf("unexpected ROI defaults: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
symbols: [BTCUSDT, ETHUSDT]
interval: 15m
maxCandles: 600
srPeriod: 80
margin: 25
timezone: UTC
clickhouse:
  addr: ["localhost:9000"]
  database: backtest
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "BTCUSDT" {
		t.Fatalf("unexpected symbols %v", cfg.Symbols)
	}
	if cfg.Interval != "15m" || cfg.MaxCandles != 600 || cfg.SRPeriod != 80 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.Margin != 25 {
		t.Fatalf("expected margin 25, got %v", cfg.Margin)
	}
	if len(cfg.ClickHouse.Addr) != 1 || cfg.ClickHouse.Database != "backtest" {
		t.Fatalf("clickhouse section not applied: %+v", cfg.ClickHouse)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatal(err)
	}
	if loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
symbols: [BTCUSDT]
interval: 15m
`)
	t.Setenv("BT_SYMBOLS", " solusdt, ethusdt ")
	t.Setenv("BT_INTERVAL", "1h")
	t.Setenv("BT_MAX_CANDLES", "500")
	t.Setenv("CLICKHOUSE_ADDR", "ch1:9000,ch2:9000")
	t.Setenv("CLICKHOUSE_PASSWORD", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "SOLUSDT" || cfg.Symbols[1] != "ETHUSDT" {
		t.Fatalf("env symbols not applied: %v", cfg.Symbols)
	}
	if cfg.Interval != "1h" || cfg.MaxCandles != 500 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.ClickHouse.Addr) != 2 || cfg.ClickHouse.Password != "hunter2" {
		t.Fatalf("clickhouse env not applied: %+v", cfg.ClickHouse)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero maxCandles", "maxCandles: -1"},
		{"srPeriod too large", "srPeriod: 400"},
		{"bad margin", "margin: 0"},
		{"bad timezone", "timezone: Mars/Olympus"},
		{"risk filter without cap", "riskFilterEnabled: true\nriskMaxSlLoss: 0\nriskMaxSlLossMult: 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}
