package main

import (
	"log/slog"
	"testing"

	"predictioncore/internal/attribution"
	"predictioncore/internal/calibration"
	"predictioncore/internal/config"
	"predictioncore/internal/correlation"
	"predictioncore/internal/engine"
	"predictioncore/internal/ledger"
	"predictioncore/internal/pipeline"
	"predictioncore/internal/resolution"
	"predictioncore/internal/risk"
	"predictioncore/internal/sizing"
	"predictioncore/internal/store"
)

// testConfig mirrors configs/config.yaml's required fields closely enough
// to pass Validate and exercise every constructor main wires together.
func testConfig() config.Config {
	return config.Config{
		Bankroll: config.BankrollConfig{TotalUSD: 10000},
		MarketMaking: config.MarketMakingConfig{
			OrderSizeUSD:          100,
			MaxInventoryImbalance: 0.3,
		},
		Kelly: config.KellyConfig{
			SafetyFactor: 0.5,
			MaxFraction:  0.2,
			MinFraction:  0.01,
		},
		Risk: config.RiskConfig{
			MaxPositionSize:        500,
			MaxTotalExposure:       5000,
			MaxPositions:           20,
			CircuitBreakerCooldown: 1,
		},
		Pipeline: config.PipelineConfig{
			IngressQueueSize: 64,
		},
		Calibration: config.CalibrationConfig{BucketCount: 10},
		API:         config.APIConfig{Enabled: false},
	}
}

// TestWiringProducesARunnableEngine exercises the same construction order
// as main, proving every component's constructor signature still fits
// together (catches accidental interface drift between packages).
func TestWiringProducesARunnableEngine(t *testing.T) {
	cfg := testConfig()
	logger := slog.Default()

	led := ledger.New()
	checker := risk.New(cfg.Risk, cfg.Bankroll.TotalUSD, led, logger)
	sizer := sizing.New(cfg.Kelly)
	corr := correlation.New()
	attr := attribution.New()
	cal := calibration.New(cfg.Calibration)

	st := store.New(cfg.Store, "")

	pl := pipeline.New(cfg.Pipeline, sizer, checker, cfg.Bankroll.TotalUSD, cfg.Risk.MaxPositionSize, st.Signals, nil, logger)
	mon := resolution.New(cfg.Resolution, led, cal, corr, st.Predictions, logger)

	eng := engine.New(cfg, led, checker, pl, mon, corr, attr, cal, logger)
	if eng == nil {
		t.Fatal("expected a non-nil engine")
	}

	eng.Start()
	eng.Stop()
}
