package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateTpSlRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calculate-tp-sl", r.URL.Path)
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "BTCUSDT", body["symbol"])
		assert.Equal(t, "BUY", body["side"])
		w.Write([]byte(`{"tp_price": 105.5, "sl_price": 95.5}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	tpSl, err := c.CalculateTpSl(context.Background(), 10, "BTCUSDT", "BUY", 100, 100, -80)
	require.NoError(t, err)
	assert.Equal(t, 105.5, tpSl.TpPrice)
	assert.Equal(t, 95.5, tpSl.SlPrice)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCalculateTpSlGivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.CalculateTpSl(context.Background(), 10, "BTCUSDT", "BUY", 100, 100, -80)
	require.Error(t, err)
	assert.Equal(t, int32(maxTpSlRetries), hits.Load())
}

func TestCalculateTpSlHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, nil)
	_, err := c.CalculateTpSl(ctx, 10, "BTCUSDT", "BUY", 100, 100, -80)
	require.Error(t, err)
}

func TestGetFuturesSymbolsFiltersUniverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get-futures-ticker", r.URL.Path)
		w.Write([]byte(`[
			{"symbol": "BTCUSDT"},
			{"symbol": "ETHBTC"},
			{"symbol": "WAVESUSDT"},
			{"symbol": "SOLUSDT"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	symbols, err := c.GetFuturesSymbols(context.Background())
	require.NoError(t, err)
	// Non-USDT pairs and ignore-listed symbols are dropped.
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, symbols)
}

func TestGetMaxLeverage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"max_leverage": 75}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	lev, err := c.GetMaxLeverage(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 75.0, lev)
}

func TestOpenOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/open-order", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "105.5", body["tp"])
		assert.Equal(t, "95.5", body["sl"])
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	require.NoError(t, c.OpenOrder(context.Background(), "BTCUSDT", 10, "BUY", 105.5, 95.5))
}
