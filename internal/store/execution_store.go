package store

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// ExecutionResult is either a Fill or a Rejected notice from the executor
// (spec.md §6: "Executor returns Fill{...} or Rejected{signal_id, reason}").
type ExecutionResult struct {
	TradeId   string
	SignalId  string
	MarketId  types.MarketId
	OutcomeId types.OutcomeId
	Side      types.Side
	Price     types.Price
	Size      types.Size
	Rejected  bool
	Reason    string
	Ts        time.Time

	// PnL is nil until attribution resolves the trade (RecordPnL), matching
	// types.AttributedTrade's own nil-until-resolved PnL field.
	PnL *types.Money
}

// BacktestStats is spec.md §6's "stats(period) -> BacktestStats{trades,
// wins, losses, win_rate, pnl, avg_win, avg_loss, max_drawdown, sharpe?}".
type BacktestStats struct {
	Trades      int
	Wins        int
	Losses      int
	WinRate     float64
	PnL         types.Money
	AvgWin      types.Money
	AvgLoss     types.Money
	MaxDrawdown types.Money
	Sharpe      float64
}

// ExecutionStore is the reference implementation of spec.md §6's
// ExecutionStore contract.
type ExecutionStore struct {
	mu      sync.RWMutex
	cfg     config.StoreConfig
	records []ExecutionResult
	byID    map[string]int // trade_id -> index, fills only
}

func NewExecutionStore(cfg config.StoreConfig) *ExecutionStore {
	return &ExecutionStore{cfg: cfg, byID: make(map[string]int)}
}

// Store inserts an execution result (spec.md §6 "store(result)").
func (s *ExecutionStore) Store(result ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !result.Rejected {
		s.byID[result.TradeId] = len(s.records)
	}
	s.records = append(s.records, result)
}

// RecordPnL fills in a closed trade's realized P&L, mirroring
// attribution.Engine.HandlePnL's retroactive update of AttributedTrade.
func (s *ExecutionStore) RecordPnL(tradeID string, pnl types.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[tradeID]
	if !ok {
		return
	}
	s.records[idx].PnL = &pnl
}

// BySignal returns every result tied to a signal (spec.md §6 "by_signal(id)").
func (s *ExecutionStore) BySignal(signalID string) []ExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ExecutionResult
	for _, r := range s.records {
		if r.SignalId == signalID {
			out = append(out, r)
		}
	}
	return out
}

// Stats computes spec.md §6's BacktestStats over a period. Rejected results
// count toward neither trades nor wins/losses — only realized fills do.
func (s *ExecutionStore) Stats(period Period) BacktestStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats BacktestStats
	var totalWin, totalLoss decimal.Decimal
	var running, peak, maxDD decimal.Decimal
	var returns []float64

	for _, r := range s.records {
		if r.Rejected || !period.Contains(r.Ts) || r.PnL == nil {
			continue
		}
		stats.Trades++
		pnl := r.PnL.Decimal
		stats.PnL.Decimal = stats.PnL.Decimal.Add(pnl)

		if pnl.GreaterThan(decimal.Zero) {
			stats.Wins++
			totalWin = totalWin.Add(pnl)
		} else if pnl.LessThan(decimal.Zero) {
			stats.Losses++
			totalLoss = totalLoss.Add(pnl)
		}

		running = running.Add(pnl)
		if running.GreaterThan(peak) {
			peak = running
		}
		if dd := peak.Sub(running); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
		f, _ := pnl.Float64()
		returns = append(returns, f)
	}

	if stats.Trades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Trades)
	}
	if stats.Wins > 0 {
		stats.AvgWin = types.NewMoney(totalWin.Div(decimal.NewFromInt(int64(stats.Wins))))
	}
	if stats.Losses > 0 {
		stats.AvgLoss = types.NewMoney(totalLoss.Div(decimal.NewFromInt(int64(stats.Losses))))
	}
	stats.MaxDrawdown = types.NewMoney(maxDD)
	stats.Sharpe = sharpeRatio(returns)
	return stats
}

// sharpeRatio is the sample mean-over-stdev of per-trade P&L, with no
// risk-free-rate or annualization adjustment — a per-trade Sharpe proxy,
// not a time-series Sharpe ratio.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return mean / stdev
}

// Prune drops records older than the configured retention window.
func (s *ExecutionStore) Prune(now time.Time) {
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
		if !r.Rejected {
			s.byID[r.TradeId] = len(kept)
		}
		kept = append(kept, r)
	}
	s.records = kept
}

func (s *ExecutionStore) snapshot() []ExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExecutionResult, len(s.records))
	copy(out, s.records)
	return out
}
