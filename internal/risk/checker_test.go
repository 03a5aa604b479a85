package risk

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/internal/ledger"
	"predictioncore/pkg/types"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionSize:        500,
		MaxTotalExposure:       5000,
		MaxPositions:           10,
		DailyLossLimit:         1000,
		MaxDrawdownPercentage:  0.25,
		Var95Limit:             2000,
		MaxViolationsPerDay:    3,
		CircuitBreakerCooldown: time.Hour,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func testSignal(size string) types.Signal {
	return types.Signal{
		Id:            "s1",
		MarketId:      types.MarketIdFromBytes([]byte("m1")),
		OutcomeId:     types.OutcomeYes,
		SuggestedSize: types.MustSize(size),
		KellyFraction: decimal.NewFromFloat(0.1),
	}
}

func TestCheckRejectsOversizedPosition(t *testing.T) {
	t.Parallel()
	led := ledger.New()
	c := New(testRiskConfig(), 10000, led, testLogger())

	d := c.Check(testSignal("600"), "", time.Now())
	if d.Approved {
		t.Error("expected rejection for size exceeding max_position_size")
	}
}

func TestCheckApprovesWithinLimits(t *testing.T) {
	t.Parallel()
	led := ledger.New()
	c := New(testRiskConfig(), 10000, led, testLogger())

	d := c.Check(testSignal("100"), "", time.Now())
	if !d.Approved {
		t.Errorf("expected approval, got rejection: %s", d.Reason)
	}
}

func TestCheckRejectsWhenBreakerTripped(t *testing.T) {
	t.Parallel()
	led := ledger.New()
	c := New(testRiskConfig(), 10000, led, testLogger())

	now := time.Now()
	c.breaker.Trip(now, "test")

	d := c.Check(testSignal("100"), "", now)
	if d.Approved {
		t.Error("expected rejection while breaker is tripped")
	}
}

func TestBreakerAutoRecoversAfterCooldown(t *testing.T) {
	t.Parallel()
	b := newBreaker(time.Minute, 5)
	now := time.Now()

	b.Trip(now, "soft trip")
	if st := b.State(now); st != BreakerTripped {
		t.Fatalf("state = %v, want TRIPPED", st)
	}

	later := now.Add(2 * time.Minute)
	if st := b.State(later); st != BreakerIdle {
		t.Errorf("state after cooldown = %v, want IDLE", st)
	}
}

func TestBreakerHardTripsAfterMaxViolations(t *testing.T) {
	t.Parallel()
	b := newBreaker(time.Minute, 2)
	now := time.Now()

	b.Trip(now, "violation 1")
	st := b.Trip(now, "violation 2")
	if st != BreakerHardTripped {
		t.Fatalf("state = %v, want HARD_TRIPPED", st)
	}

	// Hard trip does not auto-clear within the same calendar day.
	sameDayLater := now.Add(time.Minute)
	if st := b.State(sameDayLater); st != BreakerHardTripped {
		t.Errorf("state later same day = %v, want still HARD_TRIPPED", st)
	}

	// It clears at the next UTC calendar day (spec.md: "stays tripped until
	// end of day").
	nextDay := now.Add(24 * time.Hour)
	if st := b.State(nextDay); st != BreakerIdle {
		t.Errorf("state on next calendar day = %v, want IDLE", st)
	}
}

func TestBreakerResetClearsHardTrip(t *testing.T) {
	t.Parallel()
	b := newBreaker(time.Minute, 1)
	now := time.Now()

	b.Trip(now, "violation")
	if st := b.State(now); st != BreakerHardTripped {
		t.Fatalf("expected hard trip, got %v", st)
	}
	b.Reset()
	if st := b.State(now); st != BreakerIdle {
		t.Errorf("state after reset = %v, want IDLE", st)
	}
}

func TestMonitorTripsOnDailyLossLimit(t *testing.T) {
	t.Parallel()
	led := ledger.New()
	cfg := testRiskConfig()
	c := New(cfg, 10000, led, testLogger())

	_ = led.Buy(types.MarketIdFromBytes([]byte("m2")), types.OutcomeYes, types.MustMoney("1500"), types.MustPrice("0.5"))
	led.Resolve(types.MarketIdFromBytes([]byte("m2")), types.OutcomeNo) // full loss of 1500 > daily_loss_limit 1000

	snap := c.Monitor(time.Now())
	if snap.BreakerState == BreakerIdle {
		t.Error("expected breaker to trip after daily loss limit breach")
	}
}

func TestRiskLevelEscalatesWithExposure(t *testing.T) {
	t.Parallel()
	led := ledger.New()
	cfg := testRiskConfig()
	c := New(cfg, 10000, led, testLogger())

	_ = led.Buy(types.MarketIdFromBytes([]byte("m3")), types.OutcomeYes, types.MustMoney("4800"), types.MustPrice("0.5"))

	snap := c.Monitor(time.Now())
	if snap.RiskLevel == types.RiskLow {
		t.Errorf("expected elevated risk level at ~96%% of max exposure, got %v", snap.RiskLevel)
	}
}
