// Package attribution links realized P&L back to the signal and strategy
// that produced it (spec.md §4.6, C7). It is a pure subscriber of the
// ledger's PnLRecord stream — no back-pointer into the ledger itself
// (spec.md §9: "express as one-way dependencies... no back-pointers").
package attribution

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"predictioncore/pkg/types"
)

type marketKey struct {
	market  types.MarketId
	outcome types.OutcomeId
}

// Engine holds every emitted Signal and the AttributedTrades linked to
// them, and answers strategy rollups on demand (spec.md §4.6: "no cache
// invalidation bug class").
type Engine struct {
	mu sync.RWMutex

	signals map[string]types.Signal
	trades  map[string]*types.AttributedTrade
	// investment is tracked outside AttributedTrade (which has no such
	// field) solely to compute ROI in rollups.
	investment map[string]types.Money

	// open is a FIFO of still-unresolved trade IDs per (market, outcome),
	// oldest first — a closing PnLRecord for that key is attributed to
	// the oldest open trade. Known simplification: a market/outcome with
	// several fills sharing one signal attributes the whole close to one
	// trade rather than splitting pro-rata across all of them.
	open map[marketKey][]string
}

func New() *Engine {
	return &Engine{
		signals:    make(map[string]types.Signal),
		trades:     make(map[string]*types.AttributedTrade),
		investment: make(map[string]types.Money),
		open:       make(map[marketKey][]string),
	}
}

// RecordSignal inserts a Signal on emission (spec.md §4.6 stage 1).
func (e *Engine) RecordSignal(sig types.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals[sig.Id] = sig
}

// RecordFill inserts an AttributedTrade linking trade_id to signal_id on
// an executor fill event (spec.md §4.6 stage 2). Returns an error if the
// signal_id is unknown — an orphaned fill, surfaced rather than silently
// dropped (spec.md §4.9 failure semantics).
func (e *Engine) RecordFill(tradeID, signalID string, marketID types.MarketId, outcomeID types.OutcomeId) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sig, ok := e.signals[signalID]
	if !ok {
		return fmt.Errorf("attribution: fill %s references unknown signal %s (orphaned fill)", tradeID, signalID)
	}

	e.trades[tradeID] = &types.AttributedTrade{
		TradeId:    tradeID,
		SignalId:   signalID,
		StrategyId: sig.StrategyId,
	}

	k := marketKey{marketID, outcomeID}
	e.open[k] = append(e.open[k], tradeID)
	return nil
}

// HandlePnL is the ledger.Subscribe callback: it attributes a closing
// PnLRecord to the oldest still-open trade for that (market, outcome)
// (spec.md §4.6 stage 3 / §4.9's "triggers C7 rollup recompute"), using the
// ledger's own Investment figure for pnl_pct rather than a separately
// tracked fill-time estimate. A PnLRecord with no matching open trade
// (e.g. a position opened before attribution started tracking it) is a
// no-op.
func (e *Engine) HandlePnL(rec types.PnLRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := marketKey{rec.MarketId, rec.OutcomeId}
	queue := e.open[k]
	if len(queue) == 0 {
		return
	}
	tradeID := queue[0]
	e.open[k] = queue[1:]
	if len(e.open[k]) == 0 {
		delete(e.open, k)
	}

	trade, ok := e.trades[tradeID]
	if !ok {
		return
	}
	pnl := rec.PnL
	trade.PnL = &pnl
	e.investment[tradeID] = rec.Investment

	if rec.Investment.GreaterThan(decimal.Zero) {
		pct, _ := pnl.Div(rec.Investment.Decimal).Float64()
		trade.PnLPct = &pct
	}
}

// Signal returns a copy of a recorded signal, if any.
func (e *Engine) Signal(id string) (types.Signal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sig, ok := e.signals[id]
	return sig, ok
}

// Trade returns a copy of a recorded trade, if any.
func (e *Engine) Trade(tradeID string) (types.AttributedTrade, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.trades[tradeID]
	if !ok {
		return types.AttributedTrade{}, false
	}
	return *t, true
}
