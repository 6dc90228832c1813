// Package margin computes Binance futures maintenance-margin requirements
// from leverage bracket data served by the order-maker API.
package margin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bracket is one leverage tier of a symbol.
type Bracket struct {
	Bracket          int     `json:"bracket"`
	NotionalFloor    float64 `json:"notionalFloor"`
	NotionalCap      float64 `json:"notionalCap"`
	MaintMarginRatio float64 `json:"maintMarginRatio"`
	Cum              float64 `json:"cum"`
	InitialLeverage  float64 `json:"initialLeverage"`
}

type symbolBrackets struct {
	Brackets []Bracket `json:"brackets"`
}

// Position is the minimal slice of an open position needed for margin math.
type Position struct {
	Symbol        string
	NotionalValue float64
}

var ErrNotLoaded = errors.New("margin: brackets not loaded, call Fetch first")

// Service caches leverage brackets per symbol. Fetch once at startup, then
// all lookups are in-memory and safe for concurrent use.
type Service struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[string]symbolBrackets
}

func NewService(baseURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Fetch loads all symbol brackets, skipping the network when already cached
// unless forceRefresh is set.
func (s *Service) Fetch(ctx context.Context, forceRefresh bool) error {
	s.mu.RLock()
	loaded := s.cache != nil
	s.mu.RUnlock()
	if loaded && !forceRefresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/get-leverage-brackets", nil)
	if err != nil {
		return fmt.Errorf("brackets request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("brackets fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("brackets fetch: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Status string                    `json:"status"`
		Error  string                    `json:"error"`
		Data   map[string]symbolBrackets `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("brackets decode: %w", err)
	}
	if payload.Status != "ok" {
		return fmt.Errorf("brackets backend error: %s", payload.Error)
	}

	s.mu.Lock()
	s.cache = payload.Data
	s.mu.Unlock()

	s.logger.Info("leverage brackets cached", zap.Int("symbols", len(payload.Data)))
	return nil
}

// MaintenanceMargin returns cum + (notional - floor) * rate for the bracket
// tier the notional falls into. A notionalCap of 0 marks the unlimited last
// tier.
func (s *Service) MaintenanceMargin(symbol string, notionalValue float64) (float64, error) {
	brackets, err := s.bracketsFor(symbol)
	if err != nil {
		return 0, err
	}
	for _, b := range brackets {
		if b.NotionalCap == 0 || notionalValue <= b.NotionalCap {
			return b.Cum + (notionalValue-b.NotionalFloor)*b.MaintMarginRatio, nil
		}
	}
	last := brackets[len(brackets)-1]
	return last.Cum + (notionalValue-last.NotionalFloor)*last.MaintMarginRatio, nil
}

// MaintenanceMarginRate returns the applicable tier's rate.
func (s *Service) MaintenanceMarginRate(symbol string, notionalValue float64) (float64, error) {
	brackets, err := s.bracketsFor(symbol)
	if err != nil {
		return 0, err
	}
	for _, b := range brackets {
		if b.NotionalCap == 0 || notionalValue <= b.NotionalCap {
			return b.MaintMarginRatio, nil
		}
	}
	return brackets[len(brackets)-1].MaintMarginRatio, nil
}

// TotalMaintenance sums maintenance margin across positions, skipping
// symbols without bracket data.
func (s *Service) TotalMaintenance(positions []Position) float64 {
	total := 0.0
	for _, p := range positions {
		m, err := s.MaintenanceMargin(p.Symbol, p.NotionalValue)
		if err != nil {
			s.logger.Warn("maintenance margin unavailable",
				zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		total += m
	}
	return total
}

// MaxLeverage is the first bracket's initial leverage, 1 when unknown.
func (s *Service) MaxLeverage(symbol string) float64 {
	brackets, err := s.bracketsFor(symbol)
	if err != nil || brackets[0].InitialLeverage == 0 {
		return 1
	}
	return brackets[0].InitialLeverage
}

// Loaded reports whether a bracket set is cached.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache != nil
}

// Clear drops the cached brackets.
func (s *Service) Clear() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

func (s *Service) bracketsFor(symbol string) ([]Bracket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return nil, ErrNotLoaded
	}
	sb, ok := s.cache[symbol]
	if !ok || len(sb.Brackets) == 0 {
		return nil, fmt.Errorf("margin: no bracket data for %s", symbol)
	}
	return sb.Brackets, nil
}
