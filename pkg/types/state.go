package types

import "github.com/shopspring/decimal"

// PairCostState tracks one market's accumulated YES/NO inventory for the
// pair-cost arbitrage generator (spec.md §3, §4.4.2). Owned exclusively by
// that generator's per-market state cell.
type PairCostState struct {
	YesQty      decimal.Decimal
	NoQty       decimal.Decimal
	YesCost     decimal.Decimal
	NoCost      decimal.Decimal
	AvgYesPrice decimal.Decimal
	AvgNoPrice  decimal.Decimal
	TotalInvested decimal.Decimal
}

// PairCost returns avg_yes + avg_no.
func (s PairCostState) PairCost() decimal.Decimal {
	return s.AvgYesPrice.Add(s.AvgNoPrice)
}

// HasLockedProfit reports 0 < pair_cost < safetyMargin with both legs
// non-zero — the invariant from spec.md §3/§8 property 3.
func (s PairCostState) HasLockedProfit(safetyMargin decimal.Decimal) bool {
	pc := s.PairCost()
	return pc.GreaterThan(decimal.Zero) && pc.LessThan(safetyMargin) &&
		s.YesQty.GreaterThan(decimal.Zero) && s.NoQty.GreaterThan(decimal.Zero)
}

// GuaranteedProfit returns min(yes_qty, no_qty) * (1 - pair_cost), the
// locked profit on one matched pair.
func (s PairCostState) GuaranteedProfit() decimal.Decimal {
	minQty := s.YesQty
	if s.NoQty.LessThan(minQty) {
		minQty = s.NoQty
	}
	return minQty.Mul(decimal.NewFromInt(1).Sub(s.PairCost()))
}

// ApplyBuy folds a buy fill into accumulated YES/NO inventory, re-averaging
// entry price the same way Ledger.Buy re-averages a position's cost basis
// (spec.md §4.1, §4.4.2: "Maintains PairCostState per market").
func (s PairCostState) ApplyBuy(outcome OutcomeId, price Price, moneySpent Money) PairCostState {
	shares := moneySpent.Div(price.Decimal)
	switch outcome {
	case OutcomeYes:
		s.YesCost = s.YesCost.Add(moneySpent.Decimal)
		s.YesQty = s.YesQty.Add(shares)
		if !s.YesQty.IsZero() {
			s.AvgYesPrice = s.YesCost.Div(s.YesQty)
		}
	case OutcomeNo:
		s.NoCost = s.NoCost.Add(moneySpent.Decimal)
		s.NoQty = s.NoQty.Add(shares)
		if !s.NoQty.IsZero() {
			s.AvgNoPrice = s.NoCost.Div(s.NoQty)
		}
	}
	s.TotalInvested = s.TotalInvested.Add(moneySpent.Decimal)
	return s
}

// ImbalanceRatio returns max(yes,no)/min(yes,no), or a sentinel large value
// if one side is zero (treated as maximally imbalanced).
func (s PairCostState) ImbalanceRatio() decimal.Decimal {
	if s.YesQty.IsZero() || s.NoQty.IsZero() {
		return decimal.NewFromInt(1 << 30)
	}
	if s.YesQty.GreaterThan(s.NoQty) {
		return s.YesQty.Div(s.NoQty)
	}
	return s.NoQty.Div(s.YesQty)
}

// MarketMakingState is the per-market inventory cell for the market-making
// generator (spec.md §3, §4.4.1).
type MarketMakingState struct {
	YesInventory     decimal.Decimal
	NoInventory      decimal.Decimal
	LastSpread       decimal.Decimal
	VolatilityScore  float64 // [0,1]
}

// Imbalance returns (yes - no) / (yes + no) in [-1, 1], or 0 if both sides
// are empty.
func (s MarketMakingState) Imbalance() decimal.Decimal {
	total := s.YesInventory.Add(s.NoInventory)
	if total.IsZero() {
		return decimal.Zero
	}
	return s.YesInventory.Sub(s.NoInventory).Div(total)
}
