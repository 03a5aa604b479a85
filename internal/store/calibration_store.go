package store

import (
	"sync"
	"time"

	"predictioncore/internal/calibration"
	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// CalibrationRecord is a point-in-time snapshot of a strategy's calibration
// metrics, taken whenever the caller chooses to persist one (e.g. after
// every resolution, or on a timer) — calibration.Engine itself only ever
// holds the current live state, not a history of it.
type CalibrationRecord struct {
	Metrics calibration.Metrics
	Ts      time.Time
}

// CalibrationStore is the reference implementation of spec.md §6's
// CalibrationStore contract.
type CalibrationStore struct {
	mu      sync.RWMutex
	cfg     config.StoreConfig
	records map[types.StrategyId][]CalibrationRecord
}

func NewCalibrationStore(cfg config.StoreConfig) *CalibrationStore {
	return &CalibrationStore{cfg: cfg, records: make(map[types.StrategyId][]CalibrationRecord)}
}

// Store appends a calibration snapshot for a strategy.
func (s *CalibrationStore) Store(m calibration.Metrics, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.StrategyId] = append(s.records[m.StrategyId], CalibrationRecord{Metrics: m, Ts: ts})
}

// Latest returns the most recently stored snapshot for a strategy.
func (s *CalibrationStore) Latest(strategyID types.StrategyId) (CalibrationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.records[strategyID]
	if len(list) == 0 {
		return CalibrationRecord{}, false
	}
	return list[len(list)-1], true
}

// ByPeriod returns every snapshot for a strategy within a period (rollup
// input for external reporters — spec.md §6 "period-scoped rollups").
func (s *CalibrationStore) ByPeriod(strategyID types.StrategyId, period Period) []CalibrationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CalibrationRecord
	for _, r := range s.records[strategyID] {
		if period.Contains(r.Ts) {
			out = append(out, r)
		}
	}
	return out
}

// Prune drops snapshots older than the configured retention window.
func (s *CalibrationStore) Prune(now time.Time) {
	if s.cfg.RetentionWindow <= 0 {
		return
	}
	cutoff := now.Add(-s.cfg.RetentionWindow)
	s.mu.Lock()
	defer s.mu.Unlock()
	for strategy, list := range s.records {
		kept := list[:0]
		for _, r := range list {
			if r.Ts.Before(cutoff) {
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.records, strategy)
		} else {
			s.records[strategy] = kept
		}
	}
}

func (s *CalibrationStore) snapshot() map[types.StrategyId][]CalibrationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.StrategyId][]CalibrationRecord, len(s.records))
	for k, v := range s.records {
		cp := make([]CalibrationRecord, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
