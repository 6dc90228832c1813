// Package main backfills historical candles from the exchange into
// ClickHouse so later runs can analyze periods the live endpoint no longer
// serves.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"zone-backtest/services/clickhouse"
	"zone-backtest/services/config"
	"zone-backtest/services/kline"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols, overrides config")
	fromFlag := flag.String("from", "", "start date inclusive (YYYY-MM-DD)")
	toFlag := flag.String("to", "", "end date exclusive (YYYY-MM-DD), defaults to now")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	if len(cfg.ClickHouse.Addr) == 0 {
		logger.Fatal("clickhouse address is required for ingestion")
	}

	symbols := cfg.Symbols
	if *symbolsFlag != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}
	if len(symbols) == 0 {
		logger.Fatal("no symbols configured")
	}

	start, err := time.Parse("2006-01-02", *fromFlag)
	if err != nil {
		logger.Fatal("bad -from date", zap.Error(err))
	}
	end := time.Now()
	if *toFlag != "" {
		if end, err = time.Parse("2006-01-02", *toFlag); err != nil {
			logger.Fatal("bad -to date", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, err := clickhouse.NewClient(cfg.ClickHouse, logger)
	if err != nil {
		logger.Fatal("clickhouse connect failed", zap.Error(err))
	}
	defer history.Close()
	if err := history.EnsureSchema(ctx); err != nil {
		logger.Fatal("clickhouse schema failed", zap.Error(err))
	}

	klines := kline.NewClient(cfg.KlineBaseURL, logger)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		candles, err := klines.GetKlinesRange(ctx, symbol, cfg.Interval,
			start.UnixMilli(), end.UnixMilli())
		if err != nil {
			logger.Error("backfill fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if err := history.InsertCandles(ctx, symbol, cfg.Interval, candles); err != nil {
			logger.Error("backfill insert failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		logger.Info("backfill complete",
			zap.String("symbol", symbol), zap.Int("candles", len(candles)))
	}
}
