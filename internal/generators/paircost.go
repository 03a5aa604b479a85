package generators

import (
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// PairCostArb generates a matched YES+NO buy pair whenever their combined
// ask cost trades below $1 by more than the configured safety margin
// (spec.md §4.4.2): pair_cost = yes_ask + no_ask before any fill, and the
// held average price in place of a leg's ask once that leg is held; buying one of each
// locks in guaranteed_profit = 1 - pair_cost per matched unit regardless of
// which side ultimately resolves true. New generator — the teacher has no
// equivalent (it only ever holds a directional YES/NO position, never
// deliberately both at once) — grounded on spec.md §4.4.2's formulas and
// scenario S1.
type PairCostArb struct {
	cfg config.PairCostConfig
}

func NewPairCostArb(cfg config.PairCostConfig) *PairCostArb {
	return &PairCostArb{cfg: cfg}
}

// Generate emits a YES leg and a NO leg when pair_cost is safely below 1
// and existing inventory isn't already too skewed between the two legs
// (spec.md §8 property 3 / scenario S1). Returns nil when there's no
// opportunity, the position is too imbalanced to safely add to, or profit
// is already locked in (spec.md §4.4.2: "suppresses further buys once
// has_locked_profit holds").
func (g *PairCostArb) Generate(now time.Time, marketID types.MarketId, yesAsk, noAsk types.Price, state types.PairCostState) []types.Signal {
	safetyMargin := decimal.NewFromFloat(g.cfg.MinSafetyMargin)
	if state.HasLockedProfit(safetyMargin) {
		return nil
	}

	// pair_cost is the accumulated average once a leg is already held —
	// buying at the current tick's ask would otherwise make the gate
	// flicker with every book update instead of tracking the position's
	// real cost basis. Before any fill, there's no average yet, so the
	// current ask stands in for it.
	yesAvg := effectiveAvg(state.YesQty, state.AvgYesPrice, yesAsk.Decimal)
	noAvg := effectiveAvg(state.NoQty, state.AvgNoPrice, noAsk.Decimal)
	pairCost := yesAvg.Add(noAvg)

	one := decimal.NewFromInt(1)
	guaranteedMargin := one.Sub(pairCost)
	if guaranteedMargin.LessThanOrEqual(safetyMargin) {
		return nil
	}

	if state.YesQty.GreaterThan(decimal.Zero) && state.NoQty.GreaterThan(decimal.Zero) {
		maxRatio := decimal.NewFromFloat(g.cfg.MaxImbalanceRatio)
		if state.ImbalanceRatio().GreaterThan(maxRatio) {
			return nil
		}
	}

	yesSig, okYes := g.leg(now, marketID, types.OutcomeYes, yesAsk, guaranteedMargin)
	noSig, okNo := g.leg(now, marketID, types.OutcomeNo, noAsk, guaranteedMargin)

	var out []types.Signal
	if okYes {
		out = append(out, yesSig)
	}
	if okNo {
		out = append(out, noSig)
	}
	return out
}

// effectiveAvg returns the accumulated average entry price for a leg once
// inventory exists, else the current ask (nothing to average yet).
func effectiveAvg(qty, avg, currentAsk decimal.Decimal) decimal.Decimal {
	if qty.GreaterThan(decimal.Zero) {
		return avg
	}
	return currentAsk
}

func (g *PairCostArb) leg(now time.Time, marketID types.MarketId, outcome types.OutcomeId, ask types.Price, margin decimal.Decimal) (types.Signal, bool) {
	if ask.LessThanOrEqual(decimal.Zero) || ask.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return types.Signal{}, false
	}
	target := types.MustPrice("1")
	stop := types.MustPrice("0")

	sig := types.Signal{
		Id:            newSignalID(),
		MarketId:      marketID,
		OutcomeId:     outcome,
		StrategyId:    types.StrategyPairCost,
		Direction:     types.Long,
		EntryPrice:    ask,
		TargetPrice:   target,
		StopLoss:      stop,
		Edge:          margin,
		Confidence:    0.9,
		ExpectedValue: margin,
		Reasoning:     reasoningf("pair cost leg %s: guaranteed margin %s at ask %s", outcome, margin.StringFixed(4), ask.StringFixed(4)),
		CreatedAt:     now,
		ExpiresAt:     expire(now, time.Minute),
	}
	return sig, true
}
