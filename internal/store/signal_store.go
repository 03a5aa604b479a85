package store

import (
	"context"
	"sync"
	"time"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// SignalRecord is one pipeline disposition: an emitted candidate, its
// approval, and the reason (spec.md §4.5 stage 6, §7 "rejected signals
// carry structured reasons for audit").
type SignalRecord struct {
	Signal   types.Signal
	Approved bool
	Reason   string
	Ts       time.Time
}

// SignalStats is spec.md §6's SignalStore.stats() shape.
type SignalStats struct {
	Total  int
	ByType map[types.StrategyId]int
	Oldest time.Time
	Newest time.Time
}

// SignalStore is the reference implementation of spec.md §6's SignalStore
// contract and satisfies internal/pipeline.Recorder.
type SignalStore struct {
	mu      sync.RWMutex
	cfg     config.StoreConfig
	records []SignalRecord
	byID    map[string]int
}

func NewSignalStore(cfg config.StoreConfig) *SignalStore {
	return &SignalStore{cfg: cfg, byID: make(map[string]int)}
}

// RecordSignal implements internal/pipeline.Recorder.
func (s *SignalStore) RecordSignal(ctx context.Context, sig types.Signal, approved bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sig.Id] = len(s.records)
	s.records = append(s.records, SignalRecord{Signal: sig, Approved: approved, Reason: reason, Ts: sig.CreatedAt})
	return nil
}

// Get returns the record for a signal ID, if any (spec.md §6 "get(id)").
func (s *SignalStore) Get(id string) (SignalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return SignalRecord{}, false
	}
	return s.records[idx], true
}

// ByMarket returns every record for a market (spec.md §6 "by_market(id)").
func (s *SignalStore) ByMarket(marketID types.MarketId) []SignalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SignalRecord
	for _, r := range s.records {
		if r.Signal.MarketId == marketID {
			out = append(out, r)
		}
	}
	return out
}

// ByType returns every record for a strategy (spec.md §6 "by_type(t)").
func (s *SignalStore) ByType(strategyID types.StrategyId) []SignalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SignalRecord
	for _, r := range s.records {
		if r.Signal.StrategyId == strategyID {
			out = append(out, r)
		}
	}
	return out
}

// ByTimeRange returns every record created in [start, end) (spec.md §6
// "by_time_range(start,end)").
func (s *SignalStore) ByTimeRange(start, end time.Time) []SignalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	period := Period{Start: start, End: end}
	var out []SignalRecord
	for _, r := range s.records {
		if period.Contains(r.Ts) {
			out = append(out, r)
		}
	}
	return out
}

// Stats implements spec.md §6's "stats() -> {total, by_type, oldest, newest}".
func (s *SignalStore) Stats() SignalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := SignalStats{ByType: make(map[types.StrategyId]int)}
	for _, r := range s.records {
		stats.Total++
		stats.ByType[r.Signal.StrategyId]++
		if stats.Oldest.IsZero() || r.Ts.Before(stats.Oldest) {
			stats.Oldest = r.Ts
		}
		if r.Ts.After(stats.Newest) {
			stats.Newest = r.Ts
		}
	}
	return stats
}

// Prune drops records older than the configured retention window.
func (s *SignalStore) Prune(now time.Time) {
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
		s.byID[r.Signal.Id] = len(kept)
		kept = append(kept, r)
	}
	s.records = kept
}

func (s *SignalStore) snapshot() []SignalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SignalRecord, len(s.records))
	copy(out, s.records)
	return out
}
