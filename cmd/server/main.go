// Package main serves the backtest engine over HTTP: job control, trade
// logs, statistics and stored candle series.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
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

type server struct {
	runner *backtest.Runner
	store  *store.Store
	siglog *siglog.Logger
	logger *zap.Logger
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
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

	var history *clickhouse.Client
	if len(cfg.ClickHouse.Addr) > 0 {
		history, err = clickhouse.NewClient(cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("clickhouse connect failed", zap.Error(err))
		}
		defer history.Close()
		if err := history.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("clickhouse schema failed", zap.Error(err))
		}
	}

	klines := kline.NewClient(cfg.KlineBaseURL, logger)
	pricer := pricing.NewClient(cfg.OrderMakerBaseURL, logger)
	st := store.New()
	sl := siglog.NewLogger()

	runner := backtest.NewRunner(cfg, klines, pricer, pricer, st, sl, history,
		strategies.DefaultRules(), logger)

	srv := &server{runner: runner, store: st, siglog: sl, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	srv.setupRoutes(router)

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		if err := router.Run(cfg.ListenAddr); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)

	r.POST("/backtest/:symbol", s.handleStartBacktest)
	r.GET("/jobs", s.handleJobs)
	r.GET("/jobs/:id", s.handleJob)
	r.DELETE("/jobs/:id", s.handleCancelJob)

	r.GET("/results", s.handleResults)
	r.GET("/stats", s.handleStats)
	r.GET("/klines/:symbol", s.handleKlines)
	r.GET("/positions", s.handlePositions)
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) handleStartBacktest(c *gin.Context) {
	symbol := c.Param("symbol")
	job, err := s.runner.Start(symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("backtest started",
		zap.String("symbol", symbol), zap.String("jobId", job.ID))
	c.JSON(http.StatusAccepted, job)
}

func (s *server) handleJobs(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Jobs())
}

func (s *server) handleJob(c *gin.Context) {
	job, ok := s.runner.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *server) handleCancelJob(c *gin.Context) {
	if !s.runner.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found or not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceling"})
}

func (s *server) handleResults(c *gin.Context) {
	c.JSON(http.StatusOK, s.siglog.BacktestLogs())
}

func (s *server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"trades":    s.siglog.TradeStats(),
		"backtests": s.siglog.BacktestStats(),
	})
}

func (s *server) handleKlines(c *gin.Context) {
	symbol := c.Param("symbol")
	series := s.store.Klines(symbol)
	limit := len(series)
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	c.JSON(http.StatusOK, series[len(series)-limit:])
}

func (s *server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Positions())
}
