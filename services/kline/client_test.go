package kline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two klines in exchange order with one malformed row in between.
const klinesPayload = `[
	[1700000000000, "100.0", "105.0", "99.0", "104.0", "1234.5", 1700000299999, "5000.25", 42, "600.0", "2400.0", "0"],
	["bad"],
	[1700000300000, "104.0", "106.0", "103.0", "105.0", "999.9", 1700000599999, "4100.75", 40, "500.0", "2000.0", "0"]
]`

func TestGetRecentKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/klines", r.URL.Path)
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		require.Equal(t, "5m", r.URL.Query().Get("interval"))
		w.Write([]byte(klinesPayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	candles, err := c.GetRecentKlines(context.Background(), "btcusdt", "5m", 500)
	require.NoError(t, err)
	require.Len(t, candles, 2, "malformed rows must be skipped")

	first := candles[0]
	assert.Equal(t, int64(1700000000000), first.OpenTime)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 105.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 104.0, first.Close)
	// Volume comes from the quote-asset field, not the base volume.
	assert.Equal(t, 5000.25, first.Volume)
	assert.True(t, first.Closed)

	assert.Less(t, candles[0].OpenTime, candles[1].OpenTime, "ascending order")
}

func TestGetRecentKlinesEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.GetRecentKlines(context.Background(), "BTCUSDT", "5m", 500)
	require.Error(t, err)
}

func TestGetRecentKlinesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.GetRecentKlines(context.Background(), "BTCUSDT", "5m", 500)
	require.Error(t, err)
}

func TestGetKlinesRangePagination(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		start := r.URL.Query().Get("startTime")
		switch start {
		case "1700000000000":
			w.Write([]byte(klinesPayload))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	candles, err := c.GetKlinesRange(context.Background(), "BTCUSDT", "5m", 1700000000000, 1800000000000)
	require.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, 2, pages, "expected pagination to stop on an empty page")
}
