// Package sizing converts a generator's edge estimate into a bankroll
// fraction using the Kelly criterion (spec.md §4.2). It never touches the
// ledger or risk limits directly — the pipeline calls the sizer after
// filtering and before the risk gate, and treats its output as advisory.
package sizing

import (
	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// Sizer computes Kelly-based position sizes with a safety multiplier,
// volatility overlay, and market-making inventory overlay on top of the
// raw formula.
type Sizer struct {
	cfg config.KellyConfig
}

func New(cfg config.KellyConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Fraction computes the fractional-Kelly bankroll fraction for a directional
// bet: payoutPrice is the price of the side actually being bought (the YES
// price for a Long signal, 1-YES-price for a Short signal). edge is the
// signed estimated-probability-minus-market-price gap for that same side.
//
// f* = edge / (1 - payoutPrice)        (classical binary-market Kelly fraction)
// f  = f* * SafetyFactor, clamped to [MinFraction, MaxFraction]
//
// Returns exactly zero when edge <= 0 — no edge means no bet, never a
// negative-Kelly short-the-other-way inference (spec.md Open Questions).
func (s *Sizer) Fraction(edge decimal.Decimal, payoutPrice types.Price) decimal.Decimal {
	if edge.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	denom := one.Sub(payoutPrice.Decimal)
	if denom.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	raw := edge.Div(denom)
	f := raw.Mul(decimal.NewFromFloat(s.cfg.SafetyFactor))

	return s.clamp(f)
}

func (s *Sizer) clamp(f decimal.Decimal) decimal.Decimal {
	lo := decimal.NewFromFloat(s.cfg.MinFraction)
	hi := decimal.NewFromFloat(s.cfg.MaxFraction)
	if f.LessThan(lo) {
		return lo
	}
	if f.GreaterThan(hi) {
		return hi
	}
	return f
}

// VolatilityOverlay shrinks a Kelly fraction when recent realized
// volatility is elevated (spec.md §4.2): x0.5 above HighVolThreshold,
// x0.75 above MediumVolThreshold, unchanged otherwise.
func (s *Sizer) VolatilityOverlay(fraction decimal.Decimal, volatilityScore float64) decimal.Decimal {
	switch {
	case volatilityScore > s.cfg.HighVolThreshold:
		return fraction.Mul(decimal.NewFromFloat(0.5))
	case volatilityScore > s.cfg.MediumVolThreshold:
		return fraction.Mul(decimal.NewFromFloat(0.75))
	default:
		return fraction
	}
}

// InventoryOverlay shrinks a market-making fraction as inventory skews
// toward the side this signal would add to, preventing the sizer from
// compounding an existing imbalance (spec.md §4.4.1, scenario S6).
// imbalance is in [-1, 1] (see types.MarketMakingState.Imbalance); addsToYes
// indicates whether this candidate signal grows the YES side.
func (s *Sizer) InventoryOverlay(fraction decimal.Decimal, imbalance float64, addsToYes bool) decimal.Decimal {
	skew := imbalance
	if !addsToYes {
		skew = -imbalance
	}
	if skew <= 0 {
		return fraction
	}
	// Linearly shrink to zero as skew approaches full one-sided inventory.
	dampener := decimal.NewFromFloat(1 - skew)
	if dampener.LessThan(decimal.Zero) {
		dampener = decimal.Zero
	}
	return fraction.Mul(dampener)
}

// ToSize converts a Kelly fraction of bankroll into an absolute USD size,
// clamped to the per-position risk ceiling.
func ToSize(fraction decimal.Decimal, bankroll, maxPositionSize decimal.Decimal) types.Money {
	size := fraction.Mul(bankroll)
	if size.GreaterThan(maxPositionSize) {
		size = maxPositionSize
	}
	return types.Money{Decimal: size}
}
