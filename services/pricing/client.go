// Package pricing talks to the order-maker API for exchange-aware TP/SL
// prices, leverage limits, symbols, balance and live order placement.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"zone-backtest/services/engine"
)

// Symbols delisted or too illiquid to trade; filtered out of the universe.
var ignoredSymbols = map[string]struct{}{
	"AGIXUSDT": {}, "CTKUSDT": {}, "CVXUSDT": {}, "DGBUSDT": {}, "GLMRUSDT": {},
	"IDEXUSDT": {}, "KLAYUSDT": {}, "MDTUSDT": {}, "OCEANUSDT": {}, "RADUSDT": {},
	"SLPUSDT": {}, "SNTUSDT": {}, "STPTUSDT": {}, "STRAXUSDT": {}, "UNFIUSDT": {},
	"WAVESUSDT": {}, "1000WHYUSDT": {}, "1000CHEEMSUSDT": {}, "CHILLGUYUSDT": {},
	"MORPHOUSDT": {}, "THEUSDT": {}, "KEYUSDT": {}, "RENUSDT": {}, "ALPACAUSDT": {},
	"ALPHAUSDT": {}, "AMBUSDT": {}, "BALUSDT": {}, "BAKEUSDT": {}, "BLZUSDT": {},
	"BNXUSDT": {}, "BONDUSDT": {}, "BSWUSDT": {}, "COMBOUSDT": {}, "DARUSDT": {},
	"DEFIUSDT": {}, "FTMUSDT": {}, "GIGGLEUSDT": {}, "HIFIUSDT": {}, "LEVERUSDT": {},
	"LINAUSDT": {}, "LOKAUSDT": {}, "LITUSDT": {}, "LOOMUSDT": {}, "MEMEFIUSDT": {},
	"MKRUSDT": {}, "NEIROETHUSDT": {}, "OMNIUSDT": {}, "ORBSUSDT": {}, "REEFUSDT": {},
	"TROYUSDT": {}, "UXLINKUSDT": {}, "VIDTUSDT": {}, "XEMUSDT": {}, "BADGERUSDT": {},
	"NULSUSDT": {}, "OMGUSDT": {}, "STMXUSDT": {}, "AI16ZUSDT": {},
}

const (
	maxTpSlRetries = 5
	retryBaseDelay = 500 * time.Millisecond
)

// Client implements engine.Pricer against the order-maker API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

type tpSlRequest struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Cost         string `json:"cost"`
	TpRoi        string `json:"tp_roi"`
	SlRoi        string `json:"sl_roi"`
	Tp           string `json:"tp"`
	Sl           string `json:"sl"`
	CurrentPrice string `json:"current_price"`
}

type tpSlResponse struct {
	TpPrice float64 `json:"tp_price"`
	SlPrice float64 `json:"sl_price"`
}

// CalculateTpSl asks the order maker for exchange-rounded TP/SL prices.
// Transient failures are retried up to 5 times with a linearly growing
// backoff (500ms times the attempt number).
func (c *Client) CalculateTpSl(ctx context.Context, margin float64, symbol, side string, price float64, targetTpRoi, targetSlRoi float64) (engine.TpSl, error) {
	body := tpSlRequest{
		Symbol:       symbol,
		Side:         side,
		Cost:         strconv.FormatFloat(margin, 'f', -1, 64),
		TpRoi:        strconv.FormatFloat(targetTpRoi, 'f', -1, 64),
		SlRoi:        strconv.FormatFloat(targetSlRoi, 'f', -1, 64),
		Tp:           "0",
		Sl:           "0",
		CurrentPrice: strconv.FormatFloat(price, 'f', -1, 64),
	}

	var lastErr error
	for attempt := 1; attempt <= maxTpSlRetries; attempt++ {
		var out tpSlResponse
		lastErr = c.postJSON(ctx, "/calculate-tp-sl", body, &out)
		if lastErr == nil {
			return engine.TpSl{TpPrice: out.TpPrice, SlPrice: out.SlPrice}, nil
		}
		if attempt < maxTpSlRetries {
			c.logger.Debug("tp/sl calculation retry",
				zap.String("symbol", symbol),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return engine.TpSl{}, ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(attempt)):
			}
		}
	}
	return engine.TpSl{}, fmt.Errorf("calculate tp/sl for %s: %w", symbol, lastErr)
}

// GetMaxLeverage returns the exchange's maximum leverage for the symbol.
func (c *Client) GetMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		MaxLeverage float64 `json:"max_leverage"`
	}
	if err := c.getJSON(ctx, "/get-max-leverage?symbol="+symbol, &out); err != nil {
		return 0, fmt.Errorf("max leverage for %s: %w", symbol, err)
	}
	return out.MaxLeverage, nil
}

// GetFuturesSymbols returns the tradable USDT-margined universe with the
// ignore list applied.
func (c *Client) GetFuturesSymbols(ctx context.Context) ([]string, error) {
	var tickers []struct {
		Symbol string `json:"symbol"`
	}
	if err := c.getJSON(ctx, "/get-futures-ticker", &tickers); err != nil {
		return nil, fmt.Errorf("futures symbols: %w", err)
	}

	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if len(t.Symbol) < 4 || t.Symbol[len(t.Symbol)-4:] != "USDT" {
			continue
		}
		if _, skip := ignoredSymbols[t.Symbol]; skip {
			continue
		}
		symbols = append(symbols, t.Symbol)
	}
	return symbols, nil
}

// Balance is the futures wallet snapshot.
type Balance struct {
	Balance       float64 `json:"balance"`
	AvailableBal  float64 `json:"available_balance"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	var out Balance
	if err := c.getJSON(ctx, "/get-bal", &out); err != nil {
		return Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return out, nil
}

// OpenOrder places a live order with explicit TP/SL prices.
func (c *Client) OpenOrder(ctx context.Context, symbol string, margin float64, side string, tp, sl float64) error {
	body := tpSlRequest{
		Symbol: symbol,
		Side:   side,
		Cost:   strconv.FormatFloat(margin, 'f', -1, 64),
		TpRoi:  "0",
		SlRoi:  "0",
		Tp:     strconv.FormatFloat(tp, 'f', -1, 64),
		Sl:     strconv.FormatFloat(sl, 'f', -1, 64),
	}
	if err := c.postJSON(ctx, "/open-order", body, nil); err != nil {
		return fmt.Errorf("open order %s %s: %w", side, symbol, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
