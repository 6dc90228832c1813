// Package kline fetches OHLCV candles from the Binance futures REST API.
package kline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"zone-backtest/services/engine"
)

const defaultBaseURL = "https://fapi.binance.com"

// Client is a thin wrapper over the futures kline endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// GetRecentKlines returns up to limit closed candles in ascending open-time
// order. Volume is taken from the quote-asset field of the kline payload.
func (c *Client) GetRecentKlines(ctx context.Context, symbol, interval string, limit int) ([]engine.Candle, error) {
	url := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d",
		c.baseURL, strings.ToUpper(symbol), interval, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("kline request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kline fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kline fetch %s: HTTP %d", symbol, resp.StatusCode)
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("kline decode %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no kline data received for %s", symbol)
	}

	candles := make([]engine.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 8 {
			continue
		}
		candle, err := parseKline(k)
		if err != nil {
			c.logger.Warn("skipping malformed kline", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime })
	return candles, nil
}

// GetKlinesRange pages through [startMs, endMs) in ascending order, up to
// 1500 candles per request. Used for historical backfills.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]engine.Candle, error) {
	const pageSize = 1500

	var all []engine.Candle
	cursor := startMs
	for cursor < endMs {
		url := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
			c.baseURL, strings.ToUpper(symbol), interval, cursor, endMs, pageSize)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("kline range request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("kline range fetch %s: %w", symbol, err)
		}

		var raw [][]json.RawMessage
		err = json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("kline range decode %s: %w", symbol, err)
		}
		if len(raw) == 0 {
			break
		}

		var pageLast int64
		for _, k := range raw {
			if len(k) < 8 {
				continue
			}
			candle, err := parseKline(k)
			if err != nil {
				c.logger.Warn("skipping malformed kline", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			all = append(all, candle)
			pageLast = candle.OpenTime
		}
		if pageLast <= cursor {
			break
		}
		cursor = pageLast + 1
	}

	sort.Slice(all, func(i, j int) bool { return all[i].OpenTime < all[j].OpenTime })
	return all, nil
}

func parseKline(k []json.RawMessage) (engine.Candle, error) {
	var c engine.Candle
	if err := json.Unmarshal(k[0], &c.OpenTime); err != nil {
		return c, fmt.Errorf("openTime: %w", err)
	}
	if err := json.Unmarshal(k[6], &c.CloseTime); err != nil {
		return c, fmt.Errorf("closeTime: %w", err)
	}

	fields := []struct {
		idx int
		dst *float64
	}{
		{1, &c.Open},
		{2, &c.High},
		{3, &c.Low},
		{4, &c.Close},
		{7, &c.Volume}, // quote asset volume
	}
	for _, f := range fields {
		var s string
		if err := json.Unmarshal(k[f.idx], &s); err != nil {
			return c, fmt.Errorf("field %d: %w", f.idx, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return c, fmt.Errorf("field %d: %w", f.idx, err)
		}
		*f.dst = v
	}

	c.Closed = true
	return c, nil
}
