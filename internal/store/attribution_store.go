package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// AttributionRecord is one attributed trade plus the timestamp it was
// recorded under, since types.AttributedTrade itself carries no timestamp.
type AttributionRecord struct {
	Trade types.AttributedTrade
	Ts    time.Time
}

// AttributionRollup is the period-scoped rollup spec.md §6 asks
// AttributionStore to provide alongside CRUD, one per strategy.
type AttributionRollup struct {
	StrategyId types.StrategyId
	Trades     int
	Closed     int
	TotalPnL   types.Money
	WinRate    float64
}

// AttributionStore is the reference implementation of spec.md §6's
// AttributionStore contract ("parallel CRUD + period-scoped rollups").
type AttributionStore struct {
	mu      sync.RWMutex
	cfg     config.StoreConfig
	records []AttributionRecord
	byID    map[string]int
}

func NewAttributionStore(cfg config.StoreConfig) *AttributionStore {
	return &AttributionStore{cfg: cfg, byID: make(map[string]int)}
}

// Store upserts an AttributedTrade, keyed by TradeId (CRUD's C/U).
func (s *AttributionStore) Store(trade types.AttributedTrade, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byID[trade.TradeId]; ok {
		s.records[idx].Trade = trade
		return
	}
	s.byID[trade.TradeId] = len(s.records)
	s.records = append(s.records, AttributionRecord{Trade: trade, Ts: ts})
}

// Get returns a trade by ID (CRUD's R).
func (s *AttributionStore) Get(tradeID string) (types.AttributedTrade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[tradeID]
	if !ok {
		return types.AttributedTrade{}, false
	}
	return s.records[idx].Trade, true
}

// Delete removes a trade by ID (CRUD's D).
func (s *AttributionStore) Delete(tradeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[tradeID]
	if !ok {
		return
	}
	delete(s.byID, tradeID)
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	for id, i := range s.byID {
		if i > idx {
			s.byID[id] = i - 1
		}
	}
}

// Rollup computes per-strategy attribution over a period (spec.md §6).
func (s *AttributionStore) Rollup(strategyID types.StrategyId, period Period) AttributionRollup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roll := AttributionRollup{StrategyId: strategyID}
	var wins int
	for _, r := range s.records {
		if r.Trade.StrategyId != strategyID || !period.Contains(r.Ts) {
			continue
		}
		roll.Trades++
		if r.Trade.PnL == nil {
			continue
		}
		roll.Closed++
		roll.TotalPnL.Decimal = roll.TotalPnL.Decimal.Add(r.Trade.PnL.Decimal)
		if r.Trade.PnL.Decimal.GreaterThan(decimal.Zero) {
			wins++
		}
	}
	if roll.Closed > 0 {
		roll.WinRate = float64(wins) / float64(roll.Closed)
	}
	return roll
}

// Prune drops records older than the configured retention window.
func (s *AttributionStore) Prune(now time.Time) {
	if s.cfg.RetentionWindow <= 0 {
		return
	}
	cutoff := now.Add(-s.cfg.RetentionWindow)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	s.byID = make(map[string]int)
	for _, r := range s.records {
		if r.Ts.Before(cutoff) {
			continue
		}
		s.byID[r.Trade.TradeId] = len(kept)
		kept = append(kept, r)
	}
	s.records = kept
}

func (s *AttributionStore) snapshot() []AttributionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AttributionRecord, len(s.records))
	copy(out, s.records)
	return out
}
