// Package config loads runtime configuration from a YAML file with
// environment-variable overrides for secrets and endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"zone-backtest/services/clickhouse"
)

// Config is the full runtime configuration.
type Config struct {
	Symbols  []string `yaml:"symbols"`
	Interval string   `yaml:"interval"`

	MaxCandles int `yaml:"maxCandles"`
	SRPeriod   int `yaml:"srPeriod"`

	Margin      float64 `yaml:"margin"`
	TargetTpRoi float64 `yaml:"targetTpRoi"`
	TargetSlRoi float64 `yaml:"targetSlRoi"`

	// Optional entry risk filter: reject entries whose projected stop-loss
	// exceeds the absolute cap or the margin multiple. Disabled by default.
	RiskFilterEnabled bool    `yaml:"riskFilterEnabled"`
	RiskMaxSlLoss     float64 `yaml:"riskMaxSlLoss"`
	RiskMaxSlLossMult float64 `yaml:"riskMaxSlLossMult"`

	Timezone string `yaml:"timezone"`

	KlineBaseURL      string `yaml:"klineBaseUrl"`
	OrderMakerBaseURL string `yaml:"orderMakerBaseUrl"`

	ListenAddr string `yaml:"listenAddr"`

	ClickHouse clickhouse.Config `yaml:"clickhouse"`
}

// Defaults mirror the values the simulation was tuned against.
func defaults() Config {
	return Config{
		Interval:          "5m",
		MaxCandles:        400,
		SRPeriod:          50,
		Margin:            10,
		TargetTpRoi:       100,
		TargetSlRoi:       -80,
		RiskMaxSlLossMult: 3,
		Timezone:          "Local",
		KlineBaseURL:      "https://fapi.binance.com",
		OrderMakerBaseURL: "http://localhost:8787",
		ListenAddr:        ":8080",
	}
}

// Load reads the YAML file at path (skipped when empty), layers env
// overrides on top and validates the result. A .env file next to the
// binary is honored when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BT_SYMBOLS"); v != "" {
		parts := strings.Split(v, ",")
		cfg.Symbols = cfg.Symbols[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Symbols = append(cfg.Symbols, strings.ToUpper(p))
			}
		}
	}
	if v := os.Getenv("BT_INTERVAL"); v != "" {
		cfg.Interval = v
	}
	if v := os.Getenv("BT_MAX_CANDLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxCandles = n
		}
	}
	if v := os.Getenv("BT_MARGIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Margin = f
		}
	}
	if v := os.Getenv("BT_RISK_FILTER"); v != "" {
		cfg.RiskFilterEnabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BT_RISK_MAX_SL_LOSS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RiskMaxSlLoss = f
		}
	}
	if v := os.Getenv("BT_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("BT_KLINE_BASE_URL"); v != "" {
		cfg.KlineBaseURL = v
	}
	if v := os.Getenv("BT_ORDER_MAKER_BASE_URL"); v != "" {
		cfg.OrderMakerBaseURL = v
	}
	if v := os.Getenv("BT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		cfg.ClickHouse.Addr = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		cfg.ClickHouse.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_USERNAME"); v != "" {
		cfg.ClickHouse.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.ClickHouse.Password = v
	}
}

func (c Config) validate() error {
	if c.MaxCandles <= 0 {
		return fmt.Errorf("config: maxCandles must be positive, got %d", c.MaxCandles)
	}
	if c.SRPeriod <= 0 || c.SRPeriod >= c.MaxCandles {
		return fmt.Errorf("config: srPeriod must be in (0, maxCandles), got %d", c.SRPeriod)
	}
	if c.Margin <= 0 {
		return fmt.Errorf("config: margin must be positive, got %v", c.Margin)
	}
	if c.Interval == "" {
		return fmt.Errorf("config: interval is required")
	}
	if c.RiskFilterEnabled && c.RiskMaxSlLoss <= 0 && c.RiskMaxSlLossMult <= 0 {
		return fmt.Errorf("config: risk filter enabled without a loss cap")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone for session boundary math.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: bad timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
