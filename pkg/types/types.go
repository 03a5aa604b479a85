// Package types defines the shared vocabulary used across all packages of
// the trading core: identifiers, fixed-point money types, signals, risk
// limits, and the per-market state cells strategies own. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Identifiers
// ————————————————————————————————————————————————————————————————————————

// MarketId is an opaque 128-bit market identifier. Adapters are responsible
// for normalizing any exchange-specific market/condition-id split into a
// single MarketId before constructing events — the core never reasons about
// the distinction (see SPEC_FULL.md Open Questions).
type MarketId [16]byte

// NewMarketId generates a random MarketId. Adapters will more commonly
// construct one deterministically from exchange-provided bytes via
// MarketIdFromBytes.
func NewMarketId() MarketId {
	var id MarketId
	_, _ = rand.Read(id[:])
	return id
}

// MarketIdFromBytes builds a MarketId from up to 16 bytes of adapter-supplied
// identifier material, left-padding with zeros if shorter.
func MarketIdFromBytes(b []byte) MarketId {
	var id MarketId
	copy(id[16-len(b):], b)
	return id
}

func (m MarketId) String() string {
	return hex.EncodeToString(m[:])
}

func (m MarketId) IsZero() bool {
	return m == MarketId{}
}

// OutcomeId is a market-scoped outcome label, e.g. "YES" / "NO".
type OutcomeId string

const (
	OutcomeYes OutcomeId = "YES"
	OutcomeNo  OutcomeId = "NO"
)

// ————————————————————————————————————————————————————————————————————————
// Fixed-point money types
// ————————————————————————————————————————————————————————————————————————
//
// Price, Size, and Money are exact decimal values (shopspring/decimal) — no
// binary floats appear on the money path. Statistical scores (Brier,
// Sharpe, volatility) remain float64 because their own error is acceptable
// and they never feed back into cost-basis arithmetic.

// Price is a fixed-precision decimal constrained to [0, 1] for binary
// outcome contracts.
type Price struct{ decimal.Decimal }

// NewPrice validates p is in [0, 1] and wraps it.
func NewPrice(p decimal.Decimal) (Price, error) {
	if p.LessThan(decimal.Zero) || p.GreaterThan(decimal.NewFromInt(1)) {
		return Price{}, fmt.Errorf("price %s out of range [0,1]", p.String())
	}
	return Price{p}, nil
}

// MustPrice panics on an out-of-range price; intended for tests and
// compile-time constants, never for adapter-supplied input.
func MustPrice(s string) Price {
	p, err := NewPrice(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return p
}

// Complement returns 1 - p, the implied price of the opposite outcome in a
// binary market.
func (p Price) Complement() Price {
	return Price{decimal.NewFromInt(1).Sub(p.Decimal)}
}

// Size is a non-negative decimal quantity of contracts.
type Size struct{ decimal.Decimal }

func NewSize(d decimal.Decimal) (Size, error) {
	if d.LessThan(decimal.Zero) {
		return Size{}, fmt.Errorf("size %s is negative", d.String())
	}
	return Size{d}, nil
}

func MustSize(s string) Size {
	sz, err := NewSize(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return sz
}

// Money is a signed decimal amount (cost basis, P&L, exposure).
type Money struct{ decimal.Decimal }

func NewMoney(d decimal.Decimal) Money { return Money{d} }

func MustMoney(s string) Money {
	return Money{decimal.RequireFromString(s)}
}

func ZeroMoney() Money { return Money{decimal.Zero} }

// Epsilon is the dust threshold below which a position's investment is
// considered Closed (spec.md §3).
var Epsilon = decimal.NewFromFloat(0.01)

// ————————————————————————————————————————————————————————————————————————
// Enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide fails closed on anything but an exact "BUY"/"SELL" match — the
// adapter must never let an unknown side default to Buy (spec.md §9c).
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	default:
		return "", fmt.Errorf("unknown trade side %q", s)
	}
}

// Direction is the stance a Signal takes.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// PositionState is the lifecycle state of a Position.
type PositionState string

const (
	PositionOpen            PositionState = "OPEN"
	PositionPartiallyClosed PositionState = "PARTIALLY_CLOSED"
	PositionClosed          PositionState = "CLOSED"
)

// StrategyId names a signal-generating strategy (one per generator Kind,
// generators may register multiple named instances).
type StrategyId string

const (
	StrategyMarketMaking StrategyId = "market_making"
	StrategyPairCost     StrategyId = "pair_cost_arbitrage"
	StrategySpreadArb    StrategyId = "spread_arbitrage"
	StrategySentiment    StrategyId = "sentiment"
)

// ————————————————————————————————————————————————————————————————————————
// Position
// ————————————————————————————————————————————————————————————————————————

// Position is one per (MarketId, OutcomeId): cost basis, average entry
// price, mark, and lifecycle state. Owned exclusively by the ledger.
type Position struct {
	MarketId      MarketId
	OutcomeId     OutcomeId
	Investment    Money
	AvgEntryPrice Price
	CurrentPrice  Price
	State         PositionState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CurrentValue returns investment * (current/avg_entry), the mark-to-market
// value of the position (spec.md §4.1).
func (p Position) CurrentValue() Money {
	if p.AvgEntryPrice.IsZero() {
		return ZeroMoney()
	}
	ratio := p.CurrentPrice.Div(p.AvgEntryPrice.Decimal)
	return Money{p.Investment.Mul(ratio)}
}

// UnrealizedPnL returns CurrentValue - Investment.
func (p Position) UnrealizedPnL() Money {
	return Money{p.CurrentValue().Sub(p.Investment.Decimal)}
}

// PnLRecord is emitted by the ledger on every position closure (full or
// resolution-driven). Downstream subscribers (attribution, calibration)
// consume this one-way instead of holding a back-pointer into the ledger
// (spec.md §9 "no cyclic references").
type PnLRecord struct {
	MarketId  MarketId
	OutcomeId OutcomeId
	PnL       Money
	Investment Money
	ClosedAt  time.Time
	Reason    string // "sell", "resolution"
}

// ————————————————————————————————————————————————————————————————————————
// Signal
// ————————————————————————————————————————————————————————————————————————

// Signal is a candidate order emitted by a generator, sized and risk-gated
// by the pipeline. Its config-time fields are owned exclusively by the
// generator that created it once emitted; the bus shares read-only copies.
type Signal struct {
	Id              string
	MarketId        MarketId
	OutcomeId       OutcomeId // may be empty for market-level signals (e.g. MM quote pair leg)
	StrategyId      StrategyId
	Direction       Direction
	EntryPrice      Price
	TargetPrice     Price
	StopLoss        Price
	SuggestedSize   Size
	Edge            decimal.Decimal // estimated true probability - market-implied probability
	Confidence      float64         // [0,1]
	KellyFraction   decimal.Decimal
	ExpectedValue   decimal.Decimal
	LiquidityScore  float64 // [0,1]; how much size is available to trade against
	Reasoning       string
	CreatedAt       time.Time
	ExpiresAt       *time.Time
}

// Validate enforces the ordering invariant from spec.md §3: for Long,
// 0 <= stop_loss < entry_price < target_price <= 1 (mirrored for Short),
// and expected_value must be strictly positive.
func (s Signal) Validate() error {
	one := decimal.NewFromInt(1)
	if s.ExpectedValue.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("signal %s: expected_value must be > 0, got %s", s.Id, s.ExpectedValue)
	}
	switch s.Direction {
	case Long:
		if !(s.StopLoss.GreaterThanOrEqual(decimal.Zero) &&
			s.StopLoss.LessThan(s.EntryPrice.Decimal) &&
			s.EntryPrice.LessThan(s.TargetPrice.Decimal) &&
			s.TargetPrice.LessThanOrEqual(one)) {
			return fmt.Errorf("signal %s: invalid long ordering stop=%s entry=%s target=%s",
				s.Id, s.StopLoss, s.EntryPrice, s.TargetPrice)
		}
	case Short:
		if !(s.StopLoss.LessThanOrEqual(one) &&
			s.StopLoss.GreaterThan(s.EntryPrice.Decimal) &&
			s.EntryPrice.GreaterThan(s.TargetPrice.Decimal) &&
			s.TargetPrice.GreaterThanOrEqual(decimal.Zero)) {
			return fmt.Errorf("signal %s: invalid short ordering stop=%s entry=%s target=%s",
				s.Id, s.StopLoss, s.EntryPrice, s.TargetPrice)
		}
	default:
		return fmt.Errorf("signal %s: unknown direction %q", s.Id, s.Direction)
	}
	return nil
}

// IsExpired reports whether the signal's TIF has lapsed as of now.
func (s Signal) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// ————————————————————————————————————————————————————————————————————————
// Attribution & calibration
// ————————————————————————————————————————————————————————————————————————

// AttributedTrade links an executed trade back to the signal and strategy
// that produced it. PnL is nil until resolution or explicit close.
type AttributedTrade struct {
	TradeId    string
	SignalId   string
	StrategyId StrategyId
	PnL        *Money
	PnLPct     *float64
}

// Prediction is one strategy's forecast for a market's winning outcome,
// filled in with the realized result on resolution.
type Prediction struct {
	Id                  string
	SignalId            string
	StrategyId          StrategyId
	MarketId            MarketId
	OutcomeId           OutcomeId
	PredictedProbability float64 // [0,1]
	ActualOutcome       *int    // 0 or 1, nil until resolved
	Ts                  time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Risk
// ————————————————————————————————————————————————————————————————————————

// ThemeLimits bounds exposure and position count within a thematic bucket
// (e.g. "politics", "sports").
type ThemeLimits struct {
	MaxExposure   Money
	MaxPositions  int
	MaxPercentage float64 // fraction of bankroll
}

// RiskLimits is the full set of pre-trade and post-trade thresholds.
type RiskLimits struct {
	MaxPositionSize       Money
	MaxTotalExposure      Money
	MaxPositions          int
	MaxThemeExposure      Money
	MaxThemePercentage    float64
	DailyLossLimit        Money
	StopLossPercentage    float64
	MaxDrawdownPercentage float64
	Var95Limit            Money
	MaxViolationsPerDay   int
	CircuitBreakerCooldown time.Duration
	ThemeLimits           map[string]ThemeLimits
}

// RiskLevel is a coarse reporting bucket derived from the blended ratios in
// spec.md §4.3.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ————————————————————————————————————————————————————————————————————————
// Correlation
// ————————————————————————————————————————————————————————————————————————

// CorrelationKind classifies the logical relationship between two markets.
type CorrelationKind string

const (
	CorrelationImplies           CorrelationKind = "IMPLIES"
	CorrelationSuggests          CorrelationKind = "SUGGESTS"
	CorrelationMutuallyExclusive CorrelationKind = "MUTUALLY_EXCLUSIVE"
	CorrelationCumulative        CorrelationKind = "CUMULATIVE"
	CorrelationSameOutcome       CorrelationKind = "SAME_OUTCOME"
)

// CorrelationEdge is one directed (or symmetric, depending on Kind) edge in
// the correlation graph consumed by the spread/logical arbitrage generator.
type CorrelationEdge struct {
	FromMarket MarketId
	ToMarket   MarketId
	Kind       CorrelationKind
	Rho        float64 // only meaningful for Suggests, in (0,1)
	MinSpread  decimal.Decimal
}
