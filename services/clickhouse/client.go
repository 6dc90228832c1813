// Package clickhouse persists candle history and backtest outcomes.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"zone-backtest/services/engine"
)

type Config struct {
	Addr     []string `yaml:"addr"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

type Client struct {
	conn   driver.Conn
	db     string
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Database == "" {
		cfg.Database = "backtest"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &Client{conn: conn, db: cfg.Database, logger: logger}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// EnsureSchema creates the candle and result tables if missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	ddls := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
			symbol        LowCardinality(String),
			interval      LowCardinality(String),
			open_time_ms  UInt64,
			open          Float64,
			high          Float64,
			low           Float64,
			close         Float64,
			volume        Float64,
			close_time_ms UInt64,
			ingested_at   DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(ingested_at)
		ORDER BY (symbol, interval, open_time_ms)`, c.db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.backtest_results (
			job_id        String,
			symbol        LowCardinality(String),
			open_time_ms  UInt64,
			status        LowCardinality(String),
			side          LowCardinality(String),
			condition_met LowCardinality(String),
			tp_price      Float64,
			sl_price      Float64,
			margin        Float64,
			leverage      Float64,
			entry_fee     Float64,
			pnl           Float64,
			duration_min  Float64,
			inserted_at   DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (job_id, symbol, open_time_ms)`, c.db),
	}
	for _, ddl := range ddls {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertCandles batch-writes a candle series.
func (c *Client) InsertCandles(ctx context.Context, symbol, interval string, candles []engine.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.candles (symbol, interval, open_time_ms, open, high, low, close, volume, close_time_ms)", c.db))
	if err != nil {
		return fmt.Errorf("prepare candle batch: %w", err)
	}
	for _, k := range candles {
		if err := batch.Append(symbol, interval, uint64(k.OpenTime),
			k.Open, k.High, k.Low, k.Close, k.Volume, uint64(k.CloseTime)); err != nil {
			return fmt.Errorf("append candle: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send candle batch: %w", err)
	}
	c.logger.Debug("candles persisted",
		zap.String("symbol", symbol), zap.Int("count", len(candles)))
	return nil
}

// CandleHistory returns up to limit candles in ascending open-time order.
func (c *Client) CandleHistory(ctx context.Context, symbol, interval string, limit int) ([]engine.Candle, error) {
	rows, err := c.conn.Query(ctx, fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume, close_time_ms
		FROM %s.candles FINAL
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time_ms DESC
		LIMIT ?`, c.db), symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("candle history query: %w", err)
	}
	defer rows.Close()

	var candles []engine.Candle
	for rows.Next() {
		var (
			openTime, closeTime uint64
			k                   engine.Candle
		)
		if err := rows.Scan(&openTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &closeTime); err != nil {
			return nil, fmt.Errorf("candle history scan: %w", err)
		}
		k.OpenTime = int64(openTime)
		k.CloseTime = int64(closeTime)
		k.Closed = true
		candles = append(candles, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("candle history rows: %w", err)
	}

	// Query is newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// InsertBacktestResults batch-writes the position entries of a finished job.
func (c *Client) InsertBacktestResults(ctx context.Context, jobID string, entries []*engine.CandleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO %s.backtest_results
		(job_id, symbol, open_time_ms, status, side, condition_met,
		 tp_price, sl_price, margin, leverage, entry_fee, pnl, duration_min)`, c.db))
	if err != nil {
		return fmt.Errorf("prepare result batch: %w", err)
	}
	for _, e := range entries {
		conditionMet := ""
		if d := e.Data(); d != nil {
			conditionMet = d.ConditionMet
		}
		if err := batch.Append(jobID, e.Symbol, uint64(e.OpenTime),
			e.Status, e.Side, conditionMet,
			e.TpPrice, e.SlPrice, e.Margin, e.Leverage, e.EntryFee, e.PnL, e.Duration); err != nil {
			return fmt.Errorf("append result: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send result batch: %w", err)
	}
	c.logger.Info("backtest results persisted",
		zap.String("jobId", jobID), zap.Int("count", len(entries)))
	return nil
}
