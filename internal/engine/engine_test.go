package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"predictioncore/internal/attribution"
	"predictioncore/internal/calibration"
	"predictioncore/internal/config"
	"predictioncore/internal/correlation"
	"predictioncore/internal/events"
	"predictioncore/internal/ledger"
	"predictioncore/internal/pipeline"
	"predictioncore/internal/resolution"
	"predictioncore/internal/risk"
	"predictioncore/internal/sizing"
	"predictioncore/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		MarketMaking: config.MarketMakingConfig{
			MinSpread: 0.02, VolatilityWidenThreshold: 0.7, VolatilityWidenMultiplier: 1.5,
			NewsWidenMultiplier: 2.0, InventoryAdjustment: 0.1, MaxInventoryImbalance: 0.3,
			OrderSizeUSD:    100,
			RefreshInterval: 5 * time.Second, StaleBookTimeout: 30 * time.Second,
			FlowWindow: time.Minute, FlowToxicityThreshold: 0.6,
			FlowCooldownPeriod: 2 * time.Minute, FlowMaxSpreadMultiplier: 3.0,
		},
		PairCost:  config.PairCostConfig{MinSafetyMargin: 0.02, MaxImbalanceRatio: 3.0},
		SpreadArb: config.SpreadArbConfig{MinRho: 0.6, MinSpreadMargin: 0.01},
		Sentiment: config.SentimentConfig{MinScore: 0.3, DecayHalfLife: 6 * time.Hour, MaxSignalAgeSec: 3600},
		Kelly:     config.KellyConfig{SafetyFactor: 0.5, MinFraction: 0, MaxFraction: 0.25, HighVolThreshold: 0.7, MediumVolThreshold: 0.5},
		Risk: config.RiskConfig{
			MaxPositionSize: 2000, MaxTotalExposure: 25000, MaxPositions: 40,
			MaxThemeExposure: 8000, MaxThemePercentage: 0.25,
			DailyLossLimit: 2500, StopLossPercentage: 0.15, MaxDrawdownPercentage: 0.20,
			Var95Limit: 3000, MaxViolationsPerDay: 5, CircuitBreakerCooldown: time.Hour,
		},
		Pipeline:    config.PipelineConfig{MinExpectedValue: 0.001, MinConfidence: 0.1, MaxSignalsPerTick: 50, IngressQueueSize: 64},
		Calibration: config.CalibrationConfig{BucketCount: 10},
		Resolution:  config.ResolutionConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func testEngine(t *testing.T) (*Engine, *ledger.Ledger, *attribution.Engine, *calibration.Engine) {
	t.Helper()
	cfg := testConfig()
	led := ledger.New()
	checker := risk.New(cfg.Risk, 50000, led, testLogger())
	sizer := sizing.New(cfg.Kelly)
	pl := pipeline.New(cfg.Pipeline, sizer, checker, 50000, 2000, nil, nil, testLogger())
	cal := calibration.New(cfg.Calibration)
	corr := correlation.New()
	attr := attribution.New()
	mon := resolution.New(cfg.Resolution, led, cal, corr, nil, testLogger())

	eng := New(cfg, led, checker, pl, mon, corr, attr, cal, testLogger())
	led.Subscribe(attr.HandlePnL)
	return eng, led, attr, cal
}

func bookWithAsk(t *testing.T, marketID types.MarketId, bid, ask string) events.OrderBook {
	t.Helper()
	ob, err := events.NewOrderBook(marketID,
		[]events.PriceLevel{{Price: types.MustPrice(bid), Size: types.MustSize("100")}},
		[]events.PriceLevel{{Price: types.MustPrice(ask), Size: types.MustSize("100")}},
		time.Now())
	if err != nil {
		t.Fatalf("new order book: %v", err)
	}
	return ob
}

func TestOrderBookProducesApprovedSignalAttributedAndPredicted(t *testing.T) {
	t.Parallel()
	eng, _, attr, cal := testEngine(t)

	market := types.MarketIdFromBytes([]byte("m1"))
	eng.Start()
	defer eng.Stop()

	if err := eng.Submit(bookWithAsk(t, market, "0.45", "0.48")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Resolving the market marks any prediction recorded against it
	// (calibration.Compute only reports resolved predictions), which is the
	// observable proof that the book produced an approved, attributed,
	// predicted signal. Give the decision loop a moment to process the book
	// before resolving.
	time.Sleep(100 * time.Millisecond)
	if err := eng.Submit(events.MarketResolved{MarketId: market, WinningOutcomeId: types.OutcomeYes, Ts: time.Now()}); err != nil {
		t.Fatalf("submit resolution: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		if cal.Compute(types.StrategyMarketMaking).Count > 0 {
			found = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !found {
		t.Fatalf("expected the market-making prediction to be recorded and marked resolved")
	}

	_ = attr // attribution.RecordSignal is exercised by dispatch alongside calibration
}

func TestMarketResolvedClosesLedgerPositions(t *testing.T) {
	t.Parallel()
	eng, led, _, _ := testEngine(t)

	market := types.MarketIdFromBytes([]byte("m2"))
	if err := led.Buy(market, types.OutcomeYes, types.MustMoney("10"), types.MustPrice("0.5")); err != nil {
		t.Fatalf("buy: %v", err)
	}

	eng.Start()
	defer eng.Stop()

	if err := eng.Submit(events.MarketResolved{MarketId: market, WinningOutcomeId: types.OutcomeYes, Ts: time.Now()}); err != nil {
		t.Fatalf("submit resolution: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := led.Position(market, types.OutcomeYes); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected position to be closed by resolution")
}

func TestHandleFillUpdatesLedgerAndAttribution(t *testing.T) {
	t.Parallel()
	eng, led, attr, _ := testEngine(t)

	market := types.MarketIdFromBytes([]byte("m3"))
	sig := types.Signal{Id: "sig-1", MarketId: market, OutcomeId: types.OutcomeYes, StrategyId: types.StrategyMarketMaking}
	attr.RecordSignal(sig)

	err := eng.HandleFill(Fill{
		TradeId: "t1", SignalId: "sig-1", MarketId: market, OutcomeId: types.OutcomeYes,
		Side: types.Buy, Money: types.MustMoney("10"), Price: types.MustPrice("0.5"),
	})
	if err != nil {
		t.Fatalf("handle fill: %v", err)
	}

	if _, ok := led.Position(market, types.OutcomeYes); !ok {
		t.Errorf("expected ledger position opened by fill")
	}
	if _, ok := attr.Trade("t1"); !ok {
		t.Errorf("expected attribution to have linked trade t1")
	}
}
