// Package main runs backtests for one or more symbols from the command line
// and prints the aggregate outcome.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zone-backtest/services/backtest"
	"zone-backtest/services/clickhouse"
	"zone-backtest/services/config"
	"zone-backtest/services/kline"
	"zone-backtest/services/pricing"
	"zone-backtest/services/siglog"
	"zone-backtest/services/store"
	"zone-backtest/strategies"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols, overrides config")
	exportPath := flag.String("export", "", "write backtest results JSON to this file")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history *clickhouse.Client
	if len(cfg.ClickHouse.Addr) > 0 {
		history, err = clickhouse.NewClient(cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("clickhouse connect failed", zap.Error(err))
		}
		defer history.Close()
		if err := history.EnsureSchema(ctx); err != nil {
			logger.Fatal("clickhouse schema failed", zap.Error(err))
		}
	}

	klines := kline.NewClient(cfg.KlineBaseURL, logger)
	pricer := pricing.NewClient(cfg.OrderMakerBaseURL, logger)
	st := store.New()
	sl := siglog.NewLogger()

	runner := backtest.NewRunner(cfg, klines, pricer, pricer, st, sl, history,
		strategies.DefaultRules(), logger)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		jobID := uuid.NewString()
		if err := runner.Run(ctx, symbol, jobID); err != nil {
			logger.Error("backtest failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	stats := sl.BacktestStats()
	fmt.Printf("won=%d loss=%d mid=%d open=%d totalPnl=%.2f fees=%.4f\n",
		stats.WonCount, stats.LossCount, stats.MidCount, stats.OpenCount,
		stats.TotalPnl, stats.TotalTakerFee)

	if *exportPath != "" {
		raw, err := sl.ExportBacktestJSON()
		if err != nil {
			logger.Fatal("export failed", zap.Error(err))
		}
		if err := os.WriteFile(*exportPath, raw, 0o644); err != nil {
			logger.Fatal("export write failed", zap.Error(err))
		}
		logger.Info("results exported", zap.String("path", *exportPath))
	}
}
