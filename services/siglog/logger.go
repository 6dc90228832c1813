// Package siglog records trade signals and backtest results in memory and
// aggregates outcome statistics over them.
package siglog

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"zone-backtest/services/engine"
)

// TradeLog is one recorded signal and its lifecycle.
type TradeLog struct {
	ID             int                       `json:"id"`
	Timestamp      int64                     `json:"timestamp"`
	LocalTime      string                    `json:"localTime"`
	Symbol         string                    `json:"symbol"`
	Side           string                    `json:"side"`
	Support        engine.PriceZone          `json:"support"`
	Resistance     engine.PriceZone          `json:"resistance"`
	CurrentPrice   float64                   `json:"currentPrice"`
	TpPrice        float64                   `json:"tpPrice"`
	SlPrice        float64                   `json:"slPrice"`
	IsOpen         bool                      `json:"isOpen"`
	Result         string                    `json:"result"`
	CandleData     engine.CandleData         `json:"candleData"`
	HighestPnlPct  float64                   `json:"highestPnlPct"`
	LowestPnlPct   float64                   `json:"lowestPnlPct"`
	ExitPrice      float64                   `json:"exitPrice"`
	ExitTimestamp  int64                     `json:"exitTimestamp"`
	DurationMs     int64                     `json:"durationMs"`
	ZoneAnalysis   engine.ZoneAnalysis       `json:"zoneAnalysis"`
	PnL            float64                   `json:"pnl"`
	Margin         float64                   `json:"margin"`
	Leverage       float64                   `json:"leverage"`
	TakerFee       float64                   `json:"takerFee"`
	VolumeAnalysis engine.VolumeAnalysis     `json:"volumeAnalysis"`
	CandleOpenTime int64                     `json:"candleOpenTime"`
	PastVolume     engine.PastVolumeAnalysis `json:"pastVolume"`
}

// Stats aggregates trade outcomes.
type Stats struct {
	WonCount      int     `json:"wonCount"`
	LossCount     int     `json:"lossCount"`
	MidCount      int     `json:"midCount"`
	OpenCount     int     `json:"openCount"`
	OpenPnl       float64 `json:"openPnl"`
	TotalPnl      float64 `json:"totalPnl"`
	TotalTakerFee float64 `json:"totalTakerFee"`
}

// Logger is safe for concurrent use.
type Logger struct {
	mu           sync.RWMutex
	signals      map[int]*TradeLog
	backtests    map[int]*engine.CandleEntry
	nextID       int
	nextBacktest int
}

func NewLogger() *Logger {
	return &Logger{
		signals:      make(map[int]*TradeLog),
		backtests:    make(map[int]*engine.CandleEntry),
		nextID:       1,
		nextBacktest: 1,
	}
}

// LogSignal records a freshly opened signal and returns its id.
func (l *Logger) LogSignal(log TradeLog) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	log.Timestamp = now.UnixMilli()
	log.LocalTime = now.Format("2006-01-02 15:04:05")
	log.IsOpen = true
	log.Result = ""

	id := l.nextID
	l.nextID++
	log.ID = id
	l.signals[id] = &log
	return id
}

// LogBacktestResult stores a deep copy of the entry so later mutation of the
// live series cannot rewrite history.
func (l *Logger) LogBacktestResult(entry *engine.CandleEntry) (int, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}
	var snapshot engine.CandleEntry
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextBacktest
	l.nextBacktest++
	l.backtests[id] = &snapshot
	return id, nil
}

// OpenPosition returns the symbol's open signal, nil when flat.
func (l *Logger) OpenPosition(symbol string) *TradeLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, log := range l.signals {
		if log.Symbol == symbol && log.IsOpen {
			snapshot := *log
			return &snapshot
		}
	}
	return nil
}

// OpenPositions returns all open signals.
func (l *Logger) OpenPositions() []TradeLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []TradeLog
	for _, log := range l.signals {
		if log.IsOpen {
			out = append(out, *log)
		}
	}
	return out
}

// ClosePosition finalizes a signal with its exit price and result.
func (l *Logger) ClosePosition(id int, exitPrice float64, result string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	log, ok := l.signals[id]
	if !ok {
		return false
	}
	exitTime := time.Now().UnixMilli()
	log.IsOpen = false
	log.Result = result
	log.ExitPrice = exitPrice
	log.ExitTimestamp = exitTime
	log.DurationMs = exitTime - log.Timestamp
	return true
}

// ForceCloseOpenPositions settles every open signal by its current PnL sign
// and returns how many were closed.
func (l *Logger) ForceCloseOpenPositions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	closed := 0
	for _, log := range l.signals {
		if !log.IsOpen {
			continue
		}
		log.Result = engine.OutcomeLoss
		if log.PnL > 0 {
			log.Result = engine.OutcomeWon
		}
		log.IsOpen = false
		closed++
	}
	return closed
}

// UpdatePnL overwrites a signal's running PnL.
func (l *Logger) UpdatePnL(id int, pnl float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	log, ok := l.signals[id]
	if !ok {
		return false
	}
	log.PnL = pnl
	return true
}

// UpdateExtremes widens the recorded best/worst PnL percentages.
func (l *Logger) UpdateExtremes(id int, pnlPct float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	log, ok := l.signals[id]
	if !ok {
		return
	}
	if pnlPct > log.HighestPnlPct {
		log.HighestPnlPct = pnlPct
	}
	if pnlPct < log.LowestPnlPct {
		log.LowestPnlPct = pnlPct
	}
}

// AllLogs returns every signal.
func (l *Logger) AllLogs() []TradeLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TradeLog, 0, len(l.signals))
	for _, log := range l.signals {
		out = append(out, *log)
	}
	return out
}

// BacktestLogs returns every stored backtest snapshot.
func (l *Logger) BacktestLogs() []*engine.CandleEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*engine.CandleEntry, 0, len(l.backtests))
	for _, e := range l.backtests {
		out = append(out, e)
	}
	return out
}

// TradeStats aggregates outcomes across all signals.
func (l *Logger) TradeStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var s Stats
	for _, log := range l.signals {
		switch strings.ToLower(log.Result) {
		case "won":
			s.WonCount++
		case "loss":
			s.LossCount++
		case "mid":
			s.MidCount++
		}
		if log.IsOpen {
			s.OpenCount++
			s.OpenPnl += log.PnL
		}
		s.TotalPnl += log.PnL
		s.TotalTakerFee += log.TakerFee
	}
	return s
}

// BacktestStats aggregates outcomes across stored backtest snapshots.
func (l *Logger) BacktestStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var s Stats
	for _, e := range l.backtests {
		switch e.Status {
		case engine.OutcomeWon:
			s.WonCount++
		case engine.OutcomeLoss:
			s.LossCount++
		case engine.OutcomeMid:
			s.MidCount++
		case engine.StatusOpen:
			s.OpenCount++
			s.OpenPnl += e.PnL
		}
		s.TotalPnl += e.PnL
		s.TotalTakerFee += e.EntryFee
	}
	return s
}

// Clear drops all signals.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = make(map[int]*TradeLog)
}

// ClearBacktests drops all backtest snapshots.
func (l *Logger) ClearBacktests() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backtests = make(map[int]*engine.CandleEntry)
}

// ExportJSON serializes all signals.
func (l *Logger) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(l.AllLogs(), "", "  ")
}

// ExportBacktestJSON serializes all backtest snapshots.
func (l *Logger) ExportBacktestJSON() ([]byte, error) {
	return json.MarshalIndent(l.BacktestLogs(), "", "  ")
}
