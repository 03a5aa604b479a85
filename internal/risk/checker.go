// Package risk enforces portfolio-level risk limits (spec.md §4.3): a
// six-step pre-trade gate, a post-trade monitor that watches daily P&L,
// drawdown, and VaR95, and the circuit breaker state machine that ties
// them together. Grounded on the teacher's internal/risk.Manager — same
// channel-free, directly-called-from-the-decision-loop shape, generalized
// from a single global-exposure/kill-switch check into the spec's full
// six-step gate plus theme limits.
package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/internal/ledger"
	"predictioncore/pkg/types"
)

// Checker is the pre-trade gate and post-trade monitor. One Checker per
// running core instance; it reads the ledger's live positions, and theme
// exposure from the ledger's per-theme position grouping.
type Checker struct {
	cfg    config.RiskConfig
	logger *slog.Logger
	ledger *ledger.Ledger
	breaker *breaker

	bankroll decimal.Decimal
}

func New(cfg config.RiskConfig, bankroll float64, led *ledger.Ledger, logger *slog.Logger) *Checker {
	return &Checker{
		cfg:      cfg,
		logger:   logger.With("component", "risk"),
		ledger:   led,
		breaker:  newBreaker(cfg.CircuitBreakerCooldown, cfg.MaxViolationsPerDay),
		bankroll: decimal.NewFromFloat(bankroll),
	}
}

// Decision is the outcome of a pre-trade check.
type Decision struct {
	Approved bool
	Reason   string
}

func approve() Decision { return Decision{Approved: true} }

func reject(format string, args ...any) Decision {
	return Decision{Approved: false, Reason: fmt.Sprintf(format, args...)}
}

// Check runs the six-step pre-trade gate against a sized signal (spec.md
// §4.3, in order): position size, total exposure, position count, theme
// exposure, Kelly-limit, and circuit breaker status last. The first failing
// step rejects with the reason naming that step — order is load-bearing,
// since Decision.Reason must name the *first* violated rule.
func (c *Checker) Check(sig types.Signal, theme string, now time.Time) Decision {
	size := sig.SuggestedSize.Decimal
	maxPositionSize := decimal.NewFromFloat(c.cfg.MaxPositionSize)
	if size.GreaterThan(maxPositionSize) {
		return reject("position size %s exceeds max_position_size %s", size, maxPositionSize)
	}

	positions := c.ledger.Positions()
	totalExposure := decimal.Zero
	for _, p := range positions {
		totalExposure = totalExposure.Add(p.CurrentValue().Decimal)
	}
	maxTotalExposure := decimal.NewFromFloat(c.cfg.MaxTotalExposure)
	if totalExposure.Add(size).GreaterThan(maxTotalExposure) {
		return reject("total exposure %s + new size %s would exceed max_total_exposure %s",
			totalExposure, size, maxTotalExposure)
	}

	if c.cfg.MaxPositions > 0 && len(positions) >= c.cfg.MaxPositions {
		if _, exists := c.ledger.Position(sig.MarketId, sig.OutcomeId); !exists {
			return reject("position count %d at/above max_positions %d", len(positions), c.cfg.MaxPositions)
		}
	}

	if theme != "" {
		if tc, ok := c.cfg.Themes[theme]; ok {
			themeExposure := c.themeExposure(theme)
			maxThemeExposure := decimal.NewFromFloat(tc.MaxExposure)
			if themeExposure.Add(size).GreaterThan(maxThemeExposure) {
				return reject("theme %q exposure %s + new size %s would exceed max_exposure %s",
					theme, themeExposure, size, maxThemeExposure)
			}

			maxThemePercentage := tc.MaxPercentage
			if maxThemePercentage <= 0 {
				maxThemePercentage = c.cfg.MaxThemePercentage
			}
			if maxThemePercentage > 0 {
				maxThemeOfBankroll := c.bankroll.Mul(decimal.NewFromFloat(maxThemePercentage))
				if themeExposure.Add(size).GreaterThan(maxThemeOfBankroll) {
					return reject("theme %q exposure %s + new size %s would exceed max_theme_percentage*bankroll %s",
						theme, themeExposure, size, maxThemeOfBankroll)
				}
			}
		}
	}

	kellyLimit := c.bankroll.Mul(sig.KellyFraction)
	if size.GreaterThan(kellyLimit) {
		return reject("proposed size %s exceeds kelly_limit %s (bankroll %s * kelly_fraction %s)",
			size, kellyLimit, c.bankroll, sig.KellyFraction)
	}

	if st := c.breaker.State(now); st != BreakerIdle {
		return reject("circuit breaker %s", st)
	}

	return approve()
}

// themeExposure sums open exposure in markets the ledger has tagged with
// theme (engine.Engine.SetMarketTheme keeps the ledger's tagging in sync
// with its own).
func (c *Checker) themeExposure(theme string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range c.ledger.PositionsByTheme(theme) {
		total = total.Add(p.CurrentValue().Decimal)
	}
	return total
}

// PostTradeSnapshot is the result of the post-trade monitor's periodic
// evaluation.
type PostTradeSnapshot struct {
	DailyPnL    types.Money
	Drawdown    float64
	Var95       types.Money
	RiskLevel   types.RiskLevel
	BreakerState BreakerState
}

// Monitor evaluates the post-trade risk state (spec.md §4.3) and trips the
// circuit breaker if the daily loss limit, max drawdown, or VaR95 ceiling
// is breached.
func (c *Checker) Monitor(now time.Time) PostTradeSnapshot {
	metrics := c.ledger.Metrics()

	dailyPnL := c.dailyRealizedPnL(now)

	if dailyPnL.Decimal.LessThan(decimal.NewFromFloat(-c.cfg.DailyLossLimit)) {
		c.breaker.Trip(now, "daily loss limit breached")
	}
	if metrics.MaxDrawdown > c.cfg.MaxDrawdownPercentage {
		c.breaker.Trip(now, "max drawdown exceeded")
	}
	if metrics.Var95.Decimal.GreaterThan(decimal.NewFromFloat(c.cfg.Var95Limit)) {
		c.breaker.Trip(now, "VaR95 ceiling exceeded")
	}

	return PostTradeSnapshot{
		DailyPnL:     dailyPnL,
		Drawdown:     metrics.MaxDrawdown,
		Var95:        metrics.Var95,
		RiskLevel:    c.riskLevel(metrics, dailyPnL),
		BreakerState: c.breaker.State(now),
	}
}

func (c *Checker) dailyRealizedPnL(now time.Time) types.Money {
	day := now.UTC().Format("2006-01-02")
	total := decimal.Zero
	for _, rec := range c.ledger.History() {
		if rec.ClosedAt.UTC().Format("2006-01-02") == day {
			total = total.Add(rec.PnL.Decimal)
		}
	}
	return types.Money{Decimal: total}
}

// riskLevel blends exposure ratio, drawdown ratio, and position ratio with
// weights 0.4/0.4/0.2 (spec.md §4.3) into a coarse reporting bucket:
// Low < 0.4 <= Medium < 0.7 <= High < 0.9 <= Critical.
func (c *Checker) riskLevel(metrics ledger.Metrics, dailyPnL types.Money) types.RiskLevel {
	positions := c.ledger.Positions()
	exposure := decimal.Zero
	for _, p := range positions {
		exposure = exposure.Add(p.CurrentValue().Decimal)
	}
	maxExposure := decimal.NewFromFloat(c.cfg.MaxTotalExposure)
	exposureRatio := 0.0
	if maxExposure.GreaterThan(decimal.Zero) {
		r, _ := exposure.Div(maxExposure).Float64()
		exposureRatio = r
	}

	drawdownRatio := 0.0
	if c.cfg.MaxDrawdownPercentage > 0 {
		drawdownRatio = metrics.MaxDrawdown / c.cfg.MaxDrawdownPercentage
	}

	positionRatio := 0.0
	if c.cfg.MaxPositions > 0 {
		positionRatio = float64(len(positions)) / float64(c.cfg.MaxPositions)
	}

	blended := 0.4*exposureRatio + 0.4*drawdownRatio + 0.2*positionRatio
	switch {
	case blended >= 0.9:
		return types.RiskCritical
	case blended >= 0.7:
		return types.RiskHigh
	case blended >= 0.4:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// BreakerState reports the breaker's current state.
func (c *Checker) BreakerState(now time.Time) BreakerState {
	return c.breaker.State(now)
}

// ResetBreaker clears a hard-tripped breaker (operator intervention).
func (c *Checker) ResetBreaker() {
	c.breaker.Reset()
}
