package generators

import (
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// SpreadArb generates signals from the correlation graph (C10) when two
// logically related markets' YES prices diverge beyond the edge's expected
// relationship (spec.md §4.4.3, scenario S5). New generator — the teacher
// trades one market at a time and has no cross-market correlation concept
// — grounded on spec.md §4.4.3's edge-kind semantics and §3's
// CorrelationEdge fields.
type SpreadArb struct {
	cfg config.SpreadArbConfig
}

func NewSpreadArb(cfg config.SpreadArbConfig) *SpreadArb {
	return &SpreadArb{cfg: cfg}
}

// Generate evaluates one correlation edge against both markets' current
// YES prices. When From diverges from its expected price (see
// expectedPrice) by more than edge.MinSpread plus the configured margin, it
// emits one signal on the From market only: Long if From is below the
// expected price, Short if above, with edge equal to the excess over that
// floor. For Implies and MutuallyExclusive edges only the Short case
// applies, since From below its ceiling violates nothing.
func (g *SpreadArb) Generate(now time.Time, edge types.CorrelationEdge, fromPrice, toPrice types.Price) []types.Signal {
	if edge.Kind == types.CorrelationSuggests && edge.Rho < g.cfg.MinRho {
		return nil
	}

	expected := g.expectedPrice(edge, toPrice)
	spread := fromPrice.Sub(expected).Abs()
	requiredSpread := edge.MinSpread.Add(decimal.NewFromFloat(g.cfg.MinSpreadMargin))
	if spread.LessThanOrEqual(requiredSpread) {
		return nil
	}
	// Implies and MutuallyExclusive only bound From from above: From trading
	// below its ceiling is no violation.
	if fromPrice.LessThan(expected) && (edge.Kind == types.CorrelationImplies || edge.Kind == types.CorrelationMutuallyExclusive) {
		return nil
	}

	edgeAmount := spread.Sub(requiredSpread)
	var direction types.Direction
	var target types.Price
	if fromPrice.LessThan(expected) {
		direction = types.Long
		t, err := types.NewPrice(expected)
		if err != nil {
			return nil
		}
		target = t
	} else {
		direction = types.Short
		t, err := types.NewPrice(expected)
		if err != nil {
			return nil
		}
		target = t
	}

	sig, ok := g.buildSignal(now, edge.FromMarket, direction, fromPrice, target, edgeAmount, edge.Kind)
	if !ok {
		return nil
	}
	return []types.Signal{sig}
}

// expectedPrice derives the from-market's fair price implied by the
// to-market's current price and the edge's kind (spec.md §4.4.3).
func (g *SpreadArb) expectedPrice(edge types.CorrelationEdge, toPrice types.Price) decimal.Decimal {
	switch edge.Kind {
	case types.CorrelationImplies:
		// From implies To: From's true probability can't exceed To's.
		return toPrice.Decimal
	case types.CorrelationMutuallyExclusive:
		// At most one resolves true: From + To should not exceed 1.
		return decimal.NewFromInt(1).Sub(toPrice.Decimal)
	case types.CorrelationSameOutcome:
		return toPrice.Decimal
	case types.CorrelationSuggests:
		return toPrice.Mul(decimal.NewFromFloat(edge.Rho))
	default:
		return toPrice.Decimal
	}
}

func (g *SpreadArb) buildSignal(now time.Time, marketID types.MarketId, direction types.Direction, entry, target types.Price, edge decimal.Decimal, kind types.CorrelationKind) (types.Signal, bool) {
	var stop types.Price
	switch direction {
	case types.Long:
		if !target.GreaterThan(entry.Decimal) {
			return types.Signal{}, false
		}
		stopRaw := entry.Sub(target.Sub(entry.Decimal))
		if stopRaw.LessThan(decimal.Zero) {
			stopRaw = decimal.Zero
		}
		s, err := types.NewPrice(stopRaw)
		if err != nil {
			return types.Signal{}, false
		}
		stop = s
	case types.Short:
		if !target.LessThan(entry.Decimal) {
			return types.Signal{}, false
		}
		stopRaw := entry.Add(entry.Sub(target.Decimal))
		if stopRaw.GreaterThan(decimal.NewFromInt(1)) {
			stopRaw = decimal.NewFromInt(1)
		}
		s, err := types.NewPrice(stopRaw)
		if err != nil {
			return types.Signal{}, false
		}
		stop = s
	}

	return types.Signal{
		Id:            newSignalID(),
		MarketId:      marketID,
		OutcomeId:     types.OutcomeYes,
		StrategyId:    types.StrategySpreadArb,
		Direction:     direction,
		EntryPrice:    entry,
		TargetPrice:   target,
		StopLoss:      stop,
		Edge:          edge,
		Confidence:    0.6,
		ExpectedValue: edge,
		// No order-book access here, so the liquidity floor is assumed
		// satisfied; the generator only trades pairs already quoted live.
		LiquidityScore: 1.0,
		Reasoning:      reasoningf("correlation %s divergence %s vs expected %s", kind, entry.StringFixed(4), target.StringFixed(4)),
		CreatedAt:     now,
		ExpiresAt:     expire(now, 10*time.Minute),
	}, true
}
