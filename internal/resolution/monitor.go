// Package resolution consumes MarketResolved events and finalizes a
// market's P&L, calibration, and correlation state (spec.md §4.9, C9).
package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"predictioncore/internal/calibration"
	"predictioncore/internal/config"
	"predictioncore/internal/correlation"
	"predictioncore/internal/events"
	"predictioncore/internal/ledger"
	"predictioncore/pkg/types"
)

// PredictionStore persists a market's resolved Predictions. Concrete
// persistence engines are out of scope (spec.md §1 Non-goals); Monitor
// only defines the contract it retries against (spec.md §4.9).
type PredictionStore interface {
	PersistResolution(ctx context.Context, marketID types.MarketId, winningOutcome types.OutcomeId) error
}

// Monitor wires a MarketResolved event to every component that must react
// to it: the ledger closes open positions, calibration marks Predictions,
// the correlation graph drops the now-moot market. Attribution reacts on
// its own via ledger.Subscribe — Monitor never calls it directly (spec.md
// §9 one-way dependencies).
type Monitor struct {
	cfg         config.ResolutionConfig
	ledger      *ledger.Ledger
	calibration *calibration.Engine
	correlation *correlation.Graph
	predictions PredictionStore // nil: no persistence layer wired yet
	logger      *slog.Logger
}

func New(cfg config.ResolutionConfig, led *ledger.Ledger, cal *calibration.Engine, corr *correlation.Graph, predictions PredictionStore, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:         cfg,
		ledger:      led,
		calibration: cal,
		correlation: corr,
		predictions: predictions,
		logger:      logger.With("component", "resolution"),
	}
}

// Handle processes one MarketResolved event. The ledger, calibration, and
// correlation updates are each individually idempotent, so re-delivery of
// the same event is safe to replay in full (spec.md §4.9: "resolution is
// idempotent").
func (m *Monitor) Handle(ctx context.Context, ev events.MarketResolved) []types.PnLRecord {
	records := m.ledger.Resolve(ev.MarketId, ev.WinningOutcomeId)
	m.calibration.ResolveMarket(ev.MarketId, ev.WinningOutcomeId)
	m.correlation.RemoveMarket(ev.MarketId)

	if m.predictions != nil {
		if err := m.persistWithRetry(ctx, ev.MarketId, ev.WinningOutcomeId); err != nil {
			m.logger.Error("prediction store update failed after retries",
				"market", ev.MarketId.String(), "error", err)
		}
	}

	m.logger.Info("market resolved",
		"market", ev.MarketId.String(),
		"winning_outcome", ev.WinningOutcomeId,
		"closed_positions", len(records))
	return records
}

// persistWithRetry retries PersistResolution with exponential backoff
// (spec.md §4.9), mirroring the same doubling-backoff shape the adapter
// layer uses for websocket reconnects.
func (m *Monitor) persistWithRetry(ctx context.Context, marketID types.MarketId, winningOutcome types.OutcomeId) error {
	backoff := m.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxBackoff := m.cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	maxRetries := m.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		lastErr = m.predictions.PersistResolution(ctx, marketID, winningOutcome)
		if lastErr == nil {
			return nil
		}
		m.logger.Warn("prediction store update failed, retrying",
			"market", marketID.String(), "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("persist resolution for market %s: %w", marketID.String(), lastErr)
}
