// Package backtest orchestrates a simulation run: history load, support and
// resistance seeding, the candle-by-candle walk and result persistence.
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zone-backtest/services/clickhouse"
	"zone-backtest/services/config"
	"zone-backtest/services/engine"
	"zone-backtest/services/siglog"
	"zone-backtest/services/store"
)

// Job states.
const (
	JobRunning  = "RUNNING"
	JobDone     = "DONE"
	JobFailed   = "FAILED"
	JobCanceled = "CANCELED"
)

// Job tracks one symbol's simulation run.
type Job struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`

	cancel context.CancelFunc
}

// KlineSource fetches recent candles, usually the exchange REST API.
type KlineSource interface {
	GetRecentKlines(ctx context.Context, symbol, interval string, limit int) ([]engine.Candle, error)
}

// LeverageSource resolves the maximum leverage usable per symbol.
type LeverageSource interface {
	GetMaxLeverage(ctx context.Context, symbol string) (float64, error)
}

// Runner wires the collaborators and runs simulations per symbol.
type Runner struct {
	cfg      config.Config
	klines   KlineSource
	pricer   engine.Pricer
	leverage LeverageSource
	store    *store.Store
	siglog   *siglog.Logger
	history  *clickhouse.Client
	rules    []engine.Rule
	logger   *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRunner builds a runner. history may be nil, in which case results are
// kept only in memory.
func NewRunner(
	cfg config.Config,
	klines KlineSource,
	pricer engine.Pricer,
	leverage LeverageSource,
	st *store.Store,
	sl *siglog.Logger,
	history *clickhouse.Client,
	rules []engine.Rule,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		klines:   klines,
		pricer:   pricer,
		leverage: leverage,
		store:    st,
		siglog:   sl,
		history:  history,
		rules:    rules,
		logger:   logger,
		jobs:     make(map[string]*Job),
	}
}

// InitializeEntries loads the symbol's history and seeds support/resistance
// zones over the leading candles. Returns an empty slice when the exchange
// cannot serve a full window, so callers skip the symbol instead of walking
// a partial series.
func (r *Runner) InitializeEntries(ctx context.Context, symbol string) ([]*engine.CandleEntry, error) {
	candles, err := r.klines.GetRecentKlines(ctx, symbol, r.cfg.Interval, r.cfg.MaxCandles)
	if err != nil {
		return nil, fmt.Errorf("load klines for %s: %w", symbol, err)
	}
	if len(candles) < r.cfg.MaxCandles {
		r.logger.Warn("short history, skipping symbol",
			zap.String("symbol", symbol),
			zap.Int("got", len(candles)),
			zap.Int("want", r.cfg.MaxCandles))
		return []*engine.CandleEntry{}, nil
	}

	entries := engine.NewEntries(symbol, candles)
	engine.InitializeSupportResistance(entries, r.cfg.MaxCandles-r.cfg.SRPeriod, r.cfg.SRPeriod)

	// The live series excludes the still-forming latest candle.
	r.store.Initialize(symbol, entries[:len(entries)-1])

	if r.history != nil {
		if err := r.history.InsertCandles(ctx, symbol, r.cfg.Interval, candles); err != nil {
			r.logger.Warn("candle persistence failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return entries, nil
}

// Start launches a simulation for the symbol in the background and returns
// the job id immediately.
func (r *Runner) Start(symbol string) (*Job, error) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		State:     JobRunning,
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	go func() {
		defer cancel()
		err := r.Run(ctx, symbol, job.ID)

		r.mu.Lock()
		defer r.mu.Unlock()
		job.EndedAt = time.Now()
		switch {
		case err == nil:
			job.State = JobDone
		case ctx.Err() != nil:
			job.State = JobCanceled
		default:
			job.State = JobFailed
			job.Error = err.Error()
		}
	}()
	return job, nil
}

// Run executes a full simulation for one symbol synchronously.
func (r *Runner) Run(ctx context.Context, symbol, jobID string) error {
	logger := r.logger.With(zap.String("symbol", symbol), zap.String("jobId", jobID))

	entries, err := r.InitializeEntries(ctx, symbol)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	maxLev, err := r.leverage.GetMaxLeverage(ctx, symbol)
	if err != nil {
		logger.Warn("max leverage unavailable, defaulting to 1", zap.Error(err))
		maxLev = 1
	}

	loc, err := r.cfg.Location()
	if err != nil {
		return err
	}

	sim := &engine.Simulator{
		Symbol:      symbol,
		Margin:      r.cfg.Margin,
		TargetTpRoi: r.cfg.TargetTpRoi,
		TargetSlRoi: r.cfg.TargetSlRoi,
		MaxLeverage: maxLev,
		Location:    loc,
		Rules:       r.rules,
		Pricer:      r.pricer,
		Logger:      logger,
	}
	if r.cfg.RiskFilterEnabled {
		sim.RiskFilter = riskFilter(r.cfg)
	}

	// The walk stops before the still-forming latest candle.
	if err := sim.Run(ctx, entries, len(entries)-2); err != nil {
		return fmt.Errorf("simulate %s: %w", symbol, err)
	}

	var results []*engine.CandleEntry
	for _, e := range entries {
		if e.Side == "" || e.Status == "" {
			continue
		}
		results = append(results, e)
		if _, err := r.siglog.LogBacktestResult(e); err != nil {
			logger.Warn("result snapshot failed", zap.Error(err))
		}
	}

	if r.history != nil && len(results) > 0 {
		if err := r.history.InsertBacktestResults(ctx, jobID, results); err != nil {
			logger.Warn("result persistence failed", zap.Error(err))
		}
	}

	logger.Info("simulation finished", zap.Int("positions", len(results)))
	return nil
}

// riskFilter vetoes entries whose projected stop-loss loss exceeds the
// configured absolute cap or margin multiple. estimatedSlPnl is negative
// for a losing stop.
func riskFilter(cfg config.Config) engine.RiskFilter {
	return func(entry *engine.CandleEntry, estimatedSlPnl float64) bool {
		loss := -estimatedSlPnl
		if loss <= 0 {
			return false
		}
		if cfg.RiskMaxSlLoss > 0 && loss > cfg.RiskMaxSlLoss {
			return true
		}
		return cfg.RiskMaxSlLossMult > 0 && loss > entry.Margin*cfg.RiskMaxSlLossMult
	}
}

// Jobs returns snapshots of all known jobs.
func (r *Runner) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	return out
}

// Job returns a snapshot of one job by id.
func (r *Runner) Job(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Cancel requests a running job to stop.
func (r *Runner) Cancel(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok || j.State != JobRunning {
		return false
	}
	j.cancel()
	return true
}
