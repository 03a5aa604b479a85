package generators

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// SentimentScore is one externally-computed sentiment reading for a market's
// YES outcome, in [-1, 1] (positive favors YES). News ingestion and scoring
// themselves are out of scope (spec.md §1 Non-goals); this generator only
// consumes the score once produced, via this contract.
type SentimentScore struct {
	MarketId types.MarketId
	Score    float64
	Ts       time.Time
}

// Sentiment turns a decayed, externally-supplied sentiment score into a
// candidate directional signal (spec.md §4.4.4). New generator — the
// teacher has no sentiment input at all — grounded on spec.md §4.4.4's
// decay and staleness rules and on the market-making generator's leg-
// construction pattern (marketmaking.go) for Signal assembly.
type Sentiment struct {
	cfg config.SentimentConfig
}

func NewSentiment(cfg config.SentimentConfig) *Sentiment {
	return &Sentiment{cfg: cfg}
}

// Generate applies exponential decay to the score based on its age, drops
// it if stale or below the configured magnitude floor, and otherwise
// builds a Long (bullish) or Short (bearish) leg priced off mid.
func (g *Sentiment) Generate(now time.Time, mid types.Price, score SentimentScore) []types.Signal {
	if mid.LessThanOrEqual(decimal.Zero) || mid.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil
	}
	age := now.Sub(score.Ts)
	if age < 0 || int(age.Seconds()) > g.cfg.MaxSignalAgeSec {
		return nil
	}

	decayed := score.Score
	if g.cfg.DecayHalfLife > 0 {
		decayed *= math.Pow(0.5, age.Seconds()/g.cfg.DecayHalfLife.Seconds())
	}
	if math.Abs(decayed) < g.cfg.MinScore {
		return nil
	}

	sig, ok := g.buildSignal(now, score.MarketId, mid, decayed)
	if !ok {
		return nil
	}
	return []types.Signal{sig}
}

// buildSignal moves the target toward 1 for a positive score and toward 0
// for a negative one, scaled by the score's magnitude against the
// remaining room on that side; the stop sits the same distance on the
// opposite side of entry.
func (g *Sentiment) buildSignal(now time.Time, marketID types.MarketId, mid types.Price, decayed float64) (types.Signal, bool) {
	magnitude := decimal.NewFromFloat(math.Min(math.Abs(decayed), 1))
	one := decimal.NewFromInt(1)

	var direction types.Direction
	var targetRaw, stopRaw decimal.Decimal
	if decayed > 0 {
		direction = types.Long
		room := one.Sub(mid.Decimal)
		move := room.Mul(magnitude)
		targetRaw = mid.Add(move)
		stopRaw = mid.Sub(move.Div(decimal.NewFromInt(2)))
		if stopRaw.LessThan(decimal.Zero) {
			stopRaw = decimal.Zero
		}
	} else {
		direction = types.Short
		room := mid.Decimal
		move := room.Mul(magnitude)
		targetRaw = mid.Sub(move)
		stopRaw = mid.Add(move.Div(decimal.NewFromInt(2)))
		if stopRaw.GreaterThan(one) {
			stopRaw = one
		}
	}

	target, err := types.NewPrice(targetRaw)
	if err != nil {
		return types.Signal{}, false
	}
	stop, err := types.NewPrice(stopRaw)
	if err != nil {
		return types.Signal{}, false
	}
	if direction == types.Long && !target.GreaterThan(mid.Decimal) {
		return types.Signal{}, false
	}
	if direction == types.Short && !target.LessThan(mid.Decimal) {
		return types.Signal{}, false
	}

	edge := target.Sub(mid.Decimal).Abs()
	sig := types.Signal{
		Id:            newSignalID(),
		MarketId:      marketID,
		OutcomeId:     types.OutcomeYes,
		StrategyId:    types.StrategySentiment,
		Direction:     direction,
		EntryPrice:    mid,
		TargetPrice:   target,
		StopLoss:      stop,
		Edge:          edge,
		Confidence:    math.Min(math.Abs(decayed), 1),
		ExpectedValue: edge,
		// No order-book access here either; same liquidity-floor
		// assumption as SpreadArb.
		LiquidityScore: 1.0,
		Reasoning:      reasoningf("sentiment score %.3f decayed, mid %s", decayed, mid.StringFixed(4)),
		CreatedAt:     now,
		ExpiresAt:     expire(now, time.Duration(g.cfg.MaxSignalAgeSec)*time.Second),
	}
	return sig, true
}
