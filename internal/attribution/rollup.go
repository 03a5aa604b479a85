package attribution

import (
	"github.com/shopspring/decimal"

	"predictioncore/pkg/types"
)

// StrategyRollup summarizes a strategy's closed trades (spec.md §4.6):
// total P&L, hit rate, win/loss averages, profit factor, and ROI. Computed
// fresh on every call — no cached aggregate to invalidate.
type StrategyRollup struct {
	StrategyId   types.StrategyId
	TradeCount   int
	Wins         int
	Losses       int
	HitRate      float64
	TotalPnL     types.Money
	AvgWin       types.Money
	AvgLoss      types.Money
	ProfitFactor float64
	ROI          float64
}

// Rollup computes a StrategyRollup over every trade attributed to the
// given strategy that has realized P&L (unresolved trades are excluded).
func (e *Engine) Rollup(strategyID types.StrategyId) StrategyRollup {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var (
		totalPnL     = decimal.Zero
		totalInvest  = decimal.Zero
		sumWins      = decimal.Zero
		sumLosses    = decimal.Zero
		wins, losses int
	)

	for tradeID, t := range e.trades {
		if t.StrategyId != strategyID || t.PnL == nil {
			continue
		}
		totalPnL = totalPnL.Add(t.PnL.Decimal)
		if invested, ok := e.investment[tradeID]; ok {
			totalInvest = totalInvest.Add(invested.Decimal)
		}
		switch {
		case t.PnL.GreaterThan(decimal.Zero):
			wins++
			sumWins = sumWins.Add(t.PnL.Decimal)
		case t.PnL.LessThan(decimal.Zero):
			losses++
			sumLosses = sumLosses.Add(t.PnL.Decimal.Abs())
		}
	}

	tradeCount := wins + losses
	r := StrategyRollup{
		StrategyId: strategyID,
		TradeCount: tradeCount,
		Wins:       wins,
		Losses:     losses,
		TotalPnL:   types.Money{Decimal: totalPnL},
	}

	if tradeCount > 0 {
		r.HitRate = float64(wins) / float64(tradeCount)
	}
	if wins > 0 {
		r.AvgWin = types.Money{Decimal: sumWins.Div(decimal.NewFromInt(int64(wins)))}
	}
	if losses > 0 {
		r.AvgLoss = types.Money{Decimal: sumLosses.Div(decimal.NewFromInt(int64(losses)))}
	}
	if sumLosses.GreaterThan(decimal.Zero) {
		r.ProfitFactor, _ = sumWins.Div(sumLosses).Float64()
	} else if sumWins.GreaterThan(decimal.Zero) {
		r.ProfitFactor = -1 // sentinel: no losses to divide by, conventionally "infinite"
	}
	if totalInvest.GreaterThan(decimal.Zero) {
		r.ROI, _ = totalPnL.Div(totalInvest).Float64()
	}
	return r
}
