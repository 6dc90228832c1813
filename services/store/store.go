// Package store keeps per-symbol candle series in memory, capped at a fixed
// window. Concurrent reads for the same symbol are collapsed into a single
// copy via singleflight.
package store

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"zone-backtest/services/engine"
)

// MaxCandles caps every per-symbol series; the oldest candle is evicted on
// append once the cap is reached.
const MaxCandles = 400

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	series  map[string][]*engine.CandleEntry
	flights singleflight.Group
}

func New() *Store {
	return &Store{series: make(map[string][]*engine.CandleEntry)}
}

// Initialize replaces the symbol's series wholesale.
func (s *Store) Initialize(symbol string, entries []*engine.CandleEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[symbol] = append([]*engine.CandleEntry(nil), entries...)
}

// Append adds a candle to the symbol's series, evicting the oldest when at
// the cap.
func (s *Store) Append(symbol string, entry *engine.CandleEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.series[symbol]
	if len(series) >= MaxCandles {
		series = series[1:]
	}
	s.series[symbol] = append(series, entry)
}

// Klines returns a copy of the symbol's series. Concurrent calls for the
// same symbol share one snapshot.
func (s *Store) Klines(symbol string) []*engine.CandleEntry {
	v, _, _ := s.flights.Do(symbol, func() (any, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return append([]*engine.CandleEntry(nil), s.series[symbol]...), nil
	})
	return v.([]*engine.CandleEntry)
}

// Positions returns every entry across all symbols that was marked as a
// position with both TP and SL priced.
func (s *Store) Positions() []*engine.CandleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.CandleEntry
	for _, series := range s.series {
		for _, c := range series {
			if c.Side != "" && c.SlPrice > 0 && c.TpPrice > 0 {
				out = append(out, c)
			}
		}
	}
	return out
}

// CandleByTimestamp returns the entries opening at the timestamp, scoped to
// one symbol when given.
func (s *Store) CandleByTimestamp(timestamp int64, symbol string) []*engine.CandleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.CandleEntry
	for sym, series := range s.series {
		if symbol != "" && sym != symbol {
			continue
		}
		for _, c := range series {
			if c.OpenTime == timestamp {
				out = append(out, c)
			}
		}
	}
	return out
}

// FirstTimestamps returns the open times of an arbitrary symbol's series,
// used as a quick alignment probe across symbols.
func (s *Store) FirstTimestamps() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, series := range s.series {
		out := make([]int64, len(series))
		for i, c := range series {
			out[i] = c.OpenTime
		}
		return out
	}
	return nil
}

// Symbols lists symbols with a stored series.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	return out
}

// Drop removes a symbol's series.
func (s *Store) Drop(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.series, symbol)
}
