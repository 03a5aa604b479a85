package store

import (
	"context"
	"sync"

	"predictioncore/pkg/types"
)

// PredictionStore is the reference implementation of
// internal/resolution.PredictionStore: it just remembers the winning
// outcome per market, for whatever reporter wants to cross-check
// predictions against it later.
type PredictionStore struct {
	mu       sync.RWMutex
	resolved map[types.MarketId]types.OutcomeId
}

func NewPredictionStore() *PredictionStore {
	return &PredictionStore{resolved: make(map[types.MarketId]types.OutcomeId)}
}

// PersistResolution implements internal/resolution.PredictionStore.
func (s *PredictionStore) PersistResolution(ctx context.Context, marketID types.MarketId, winningOutcome types.OutcomeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[marketID] = winningOutcome
	return nil
}

// WinningOutcome returns the persisted winning outcome for a market, if any.
func (s *PredictionStore) WinningOutcome(marketID types.MarketId) (types.OutcomeId, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.resolved[marketID]
	return o, ok
}
