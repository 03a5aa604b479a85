// Command core is the prediction-market trading engine's entry point.
//
// Architecture:
//
//	main.go                      — entry point: loads config, wires every
//	                                component, starts the engine, waits for
//	                                SIGINT/SIGTERM
//	internal/engine               — orchestrator: single decision loop
//	internal/generators            — market-making, pair-cost arbitrage,
//	                                spread/logical arbitrage, sentiment
//	internal/sizing                — Kelly position sizing
//	internal/risk                  — pre-trade gate and post-trade monitor
//	internal/pipeline              — filter/rank/size/gate signal pipeline
//	internal/ledger                 — position and realized P&L tracking
//	internal/attribution           — per-trade, per-strategy P&L attribution
//	internal/calibration            — Brier/log-loss/ECE and drift detection
//	internal/correlation            — pairwise market correlation graph
//	internal/resolution            — market-resolution fan-out
//	internal/store                  — in-memory reference storage contracts
//	internal/api                    — poll-only observability HTTP server
//
// This binary wires components together; it does not place orders or route
// executions — concrete exchange connectors are out of scope.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"predictioncore/internal/api"
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

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("CORE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	led := ledger.New()
	checker := risk.New(cfg.Risk, cfg.Bankroll.TotalUSD, led, logger)
	sizer := sizing.New(cfg.Kelly)
	corr := correlation.New()
	attr := attribution.New()
	cal := calibration.New(cfg.Calibration)

	st := store.New(cfg.Store, "")

	pl := pipeline.New(cfg.Pipeline, sizer, checker, cfg.Bankroll.TotalUSD, cfg.Risk.MaxPositionSize, st.Signals, nil, logger)
	mon := resolution.New(cfg.Resolution, led, cal, corr, st.Predictions, logger)

	eng := engine.New(*cfg, led, checker, pl, mon, corr, attr, cal, logger)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.New(cfg.API, led, checker, cal, st.Drifts, eng.Theme, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("api server started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	eng.Start()

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no executions will be recorded against the ledger")
	}

	logger.Info("prediction-market trading core started",
		"bankroll", cfg.Bankroll.TotalUSD,
		"max_positions", cfg.Risk.MaxPositions,
		"max_total_exposure", cfg.Risk.MaxTotalExposure,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Stop(ctx); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
		cancel()
	}

	eng.Stop()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
