// Package ledger owns the portfolio's Position records exclusively (spec.md
// §3, §4.1). It is the single source of truth for cost basis and realized/
// unrealized P&L. Attribution receives the PnLRecord events it emits via
// Subscribe; risk reads copies of its state (Positions, History, Metrics).
// Neither is referenced back from the ledger (spec.md §9: "no cyclic
// references... express as one-way dependencies").
package ledger

import (
	"container/ring"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/pkg/types"
)

type key struct {
	market  types.MarketId
	outcome types.OutcomeId
}

// Ledger tracks one Position per (market, outcome). It is owned exclusively
// by the decision loop (spec.md §5) — callers outside that loop must read
// via Position/Positions/History, never hold a reference into the live map.
type Ledger struct {
	mu        sync.RWMutex
	positions map[key]types.Position
	themes    map[types.MarketId]string

	history    *ring.Ring // last 1000 PnLRecords, spec.md §4.1
	historyLen int

	subscribers []func(types.PnLRecord)
}

const historyCapacity = 1000

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[key]types.Position),
		themes:    make(map[types.MarketId]string),
		history:   ring.New(historyCapacity),
	}
}

// SetTheme tags a market with the theme its positions should be grouped
// under for per-theme exposure limits (spec.md §4.3). Call sites mirror
// engine.Engine.SetMarketTheme so the ledger's view stays in sync with the
// engine's.
func (l *Ledger) SetTheme(marketID types.MarketId, theme string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.themes[marketID] = theme
}

// PositionsByTheme returns open positions in markets tagged with theme.
func (l *Ledger) PositionsByTheme(theme string) []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.Position
	for k, p := range l.positions {
		if l.themes[k.market] == theme {
			out = append(out, p)
		}
	}
	return out
}

// Subscribe registers a callback invoked synchronously whenever the ledger
// emits a PnLRecord. Callbacks run on the decision-loop goroutine and must
// not block (spec.md §5: "No blocking inside risk checks or sizing").
func (l *Ledger) Subscribe(fn func(types.PnLRecord)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

func (l *Ledger) emit(rec types.PnLRecord) {
	l.history.Value = rec
	l.history = l.history.Next()
	if l.historyLen < historyCapacity {
		l.historyLen++
	}
	for _, fn := range l.subscribers {
		fn(rec)
	}
}

// Buy records a purchase. If no position exists for (market, outcome) one
// is created with investment=moneySpent, avg_entry_price=price. Otherwise
// the position is re-averaged: total_shares = investment/avg +
// moneySpent/price; new_investment = investment + moneySpent; avg =
// new_investment / total_shares (spec.md §4.1).
func (l *Ledger) Buy(marketID types.MarketId, outcomeID types.OutcomeId, moneySpent types.Money, price types.Price) error {
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("buy %s/%s: price %s not in (0,1)", marketID, outcomeID, price)
	}
	if moneySpent.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("buy %s/%s: money_spent %s must be > 0", marketID, outcomeID, moneySpent)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{marketID, outcomeID}
	now := time.Now()
	pos, exists := l.positions[k]
	if !exists {
		l.positions[k] = types.Position{
			MarketId:      marketID,
			OutcomeId:     outcomeID,
			Investment:    moneySpent,
			AvgEntryPrice: price,
			CurrentPrice:  price,
			State:         types.PositionOpen,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return nil
	}

	totalShares := pos.Investment.Div(pos.AvgEntryPrice.Decimal).Add(moneySpent.Div(price.Decimal))
	newInvestment := pos.Investment.Add(moneySpent.Decimal)
	newAvg := newInvestment.Div(totalShares)

	avgPrice, err := types.NewPrice(newAvg)
	if err != nil {
		return fmt.Errorf("buy %s/%s: %w", marketID, outcomeID, err)
	}

	pos.Investment = types.Money{Decimal: newInvestment}
	pos.AvgEntryPrice = avgPrice
	pos.State = types.PositionOpen
	pos.UpdatedAt = now
	l.positions[k] = pos
	return nil
}

// Sell records a partial or full disposal. shares_sold = money_realized /
// price; cost_basis = shares_sold * avg; pnl = money_realized - cost_basis.
// Fails if selling more than invested. Closes the position when remaining
// investment < Epsilon (spec.md §4.1).
func (l *Ledger) Sell(marketID types.MarketId, outcomeID types.OutcomeId, moneyRealized types.Money, price types.Price) (types.Money, error) {
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThan(decimal.NewFromInt(1)) {
		return types.Money{}, fmt.Errorf("sell %s/%s: price %s not in (0,1]", marketID, outcomeID, price)
	}
	if moneyRealized.LessThanOrEqual(decimal.Zero) {
		return types.Money{}, fmt.Errorf("sell %s/%s: money_realized %s must be > 0", marketID, outcomeID, moneyRealized)
	}

	l.mu.Lock()

	k := key{marketID, outcomeID}
	pos, exists := l.positions[k]
	if !exists {
		l.mu.Unlock()
		return types.Money{}, fmt.Errorf("sell %s/%s: no open position (ledger inconsistency)", marketID, outcomeID)
	}

	sharesSold := moneyRealized.Div(price.Decimal)
	costBasis := sharesSold.Mul(pos.AvgEntryPrice.Decimal)
	if costBasis.GreaterThan(pos.Investment.Decimal.Add(types.Epsilon)) {
		l.mu.Unlock()
		return types.Money{}, fmt.Errorf("sell %s/%s: selling more than invested (cost_basis=%s investment=%s)",
			marketID, outcomeID, costBasis, pos.Investment)
	}

	pnl := moneyRealized.Sub(costBasis)
	now := time.Now()
	pos.Investment = types.Money{Decimal: pos.Investment.Sub(costBasis)}
	pos.UpdatedAt = now

	closed := pos.Investment.LessThan(types.Epsilon)
	if closed {
		pos.State = types.PositionClosed
		pos.Investment = types.ZeroMoney()
	} else {
		pos.State = types.PositionPartiallyClosed
	}
	l.positions[k] = pos

	rec := types.PnLRecord{
		MarketId:   marketID,
		OutcomeId:  outcomeID,
		PnL:        types.Money{Decimal: pnl},
		Investment: types.Money{Decimal: costBasis},
		ClosedAt:   now,
		Reason:     "sell",
	}
	if closed {
		delete(l.positions, k)
	}
	l.mu.Unlock()

	l.emit(rec)
	return types.Money{Decimal: pnl}, nil
}

// Mark updates current_price only; does not affect cost basis.
func (l *Ledger) Mark(marketID types.MarketId, outcomeID types.OutcomeId, price types.Price) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{marketID, outcomeID}
	pos, exists := l.positions[k]
	if !exists {
		return
	}
	pos.CurrentPrice = price
	pos.UpdatedAt = time.Now()
	l.positions[k] = pos
}

// Resolve closes every open position in the market. Positions matching the
// winning outcome realize pnl = investment*(1/avg - 1), i.e. shares redeemed
// at $1 minus investment;
// losing positions realize pnl = -investment (spec.md §4.1). Resolution is
// atomic per market and idempotent: re-delivery of the same (market,
// winningOutcome) after the market has no open positions left is a no-op.
func (l *Ledger) Resolve(marketID types.MarketId, winningOutcome types.OutcomeId) []types.PnLRecord {
	l.mu.Lock()

	var toClose []key
	for k := range l.positions {
		if k.market == marketID {
			toClose = append(toClose, k)
		}
	}
	if len(toClose) == 0 {
		l.mu.Unlock()
		return nil
	}

	now := time.Now()
	var records []types.PnLRecord
	for _, k := range toClose {
		pos := l.positions[k]
		var pnl decimal.Decimal
		if k.outcome == winningOutcome {
			// Winning shares redeem at $1 each: shares = investment/avg,
			// payout = shares*1, pnl = payout - investment.
			pnl = pos.Investment.Mul(decimal.NewFromInt(1).Div(pos.AvgEntryPrice.Decimal).Sub(decimal.NewFromInt(1)))
		} else {
			pnl = pos.Investment.Neg()
		}
		records = append(records, types.PnLRecord{
			MarketId:   k.market,
			OutcomeId:  k.outcome,
			PnL:        types.Money{Decimal: pnl},
			Investment: pos.Investment,
			ClosedAt:   now,
			Reason:     "resolution",
		})
		delete(l.positions, k)
	}
	l.mu.Unlock()

	for _, rec := range records {
		l.emit(rec)
	}
	return records
}

// Position returns a copy of the current position, if any.
func (l *Ledger) Position(marketID types.MarketId, outcomeID types.OutcomeId) (types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[key{marketID, outcomeID}]
	return pos, ok
}

// Positions returns a snapshot copy of all open positions — the read-only
// view external observers may access at yield points (spec.md §5).
func (l *Ledger) Positions() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// PositionsInMarket returns open positions restricted to one market.
func (l *Ledger) PositionsInMarket(marketID types.MarketId) []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.Position
	for k, p := range l.positions {
		if k.market == marketID {
			out = append(out, p)
		}
	}
	return out
}

// History returns the bounded ring of realized PnLRecords, oldest first.
func (l *Ledger) History() []types.PnLRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.PnLRecord, 0, l.historyLen)
	l.history.Do(func(v any) {
		if v == nil {
			return
		}
		out = append(out, v.(types.PnLRecord))
	})
	return out
}
