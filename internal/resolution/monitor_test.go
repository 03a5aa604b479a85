package resolution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/calibration"
	"predictioncore/internal/config"
	"predictioncore/internal/correlation"
	"predictioncore/internal/events"
	"predictioncore/internal/ledger"
	"predictioncore/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCalibrationConfig() config.CalibrationConfig {
	return config.CalibrationConfig{BucketCount: 10}
}

func testResolutionConfig() config.ResolutionConfig {
	return config.ResolutionConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func mustPrice(t *testing.T, s string) types.Price {
	t.Helper()
	p, err := types.NewPrice(decimal.RequireFromString(s))
	if err != nil {
		t.Fatalf("price %s: %v", s, err)
	}
	return p
}

func TestHandleClosesPositionsAndUpdatesCalibrationAndCorrelation(t *testing.T) {
	t.Parallel()

	led := ledger.New()
	market := types.MarketIdFromBytes([]byte("m1"))
	other := types.MarketIdFromBytes([]byte("m2"))
	if err := led.Buy(market, types.OutcomeYes, types.MustMoney("10"), mustPrice(t, "0.5")); err != nil {
		t.Fatalf("buy: %v", err)
	}

	cal := calibration.New(testCalibrationConfig())
	cal.RecordPrediction(types.Prediction{
		Id: "p1", MarketId: market, OutcomeId: types.OutcomeYes,
		PredictedProbability: 0.7, Ts: time.Now(),
	})

	corr := correlation.New()
	corr.AddEdge(types.CorrelationEdge{FromMarket: market, ToMarket: other, Kind: types.CorrelationImplies})

	mon := New(testResolutionConfig(), led, cal, corr, nil, testLogger())

	records := mon.Handle(context.Background(), events.MarketResolved{
		MarketId: market, WinningOutcomeId: types.OutcomeYes, Ts: time.Now(),
	})
	if len(records) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(records))
	}

	if _, ok := led.Position(market, types.OutcomeYes); ok {
		t.Errorf("expected position closed out of the ledger")
	}

	m := cal.Compute(types.StrategyId(""))
	if m.Count != 1 {
		t.Errorf("expected 1 resolved prediction, got %d", m.Count)
	}

	if len(corr.Neighbors(market)) != 0 {
		t.Errorf("expected correlation edges from resolved market removed, got %v", corr.Neighbors(market))
	}
}

func TestHandleIsIdempotent(t *testing.T) {
	t.Parallel()

	led := ledger.New()
	market := types.MarketIdFromBytes([]byte("m1"))
	led.Buy(market, types.OutcomeYes, types.MustMoney("10"), mustPrice(t, "0.5"))

	cal := calibration.New(testCalibrationConfig())
	corr := correlation.New()
	mon := New(testResolutionConfig(), led, cal, corr, nil, testLogger())

	ev := events.MarketResolved{MarketId: market, WinningOutcomeId: types.OutcomeYes, Ts: time.Now()}
	first := mon.Handle(context.Background(), ev)
	second := mon.Handle(context.Background(), ev)

	if len(first) != 1 {
		t.Fatalf("expected first resolution to close 1 position, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("expected re-delivered resolution to be a no-op, got %d closed positions", len(second))
	}
}

type flakyStore struct {
	failures int
	calls    int
}

func (f *flakyStore) PersistResolution(ctx context.Context, marketID types.MarketId, winningOutcome types.OutcomeId) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient store error")
	}
	return nil
}

func TestHandleRetriesPredictionStoreOnFailure(t *testing.T) {
	t.Parallel()

	led := ledger.New()
	market := types.MarketIdFromBytes([]byte("m1"))
	cal := calibration.New(testCalibrationConfig())
	corr := correlation.New()
	store := &flakyStore{failures: 2}

	mon := New(testResolutionConfig(), led, cal, corr, store, testLogger())
	mon.Handle(context.Background(), events.MarketResolved{
		MarketId: market, WinningOutcomeId: types.OutcomeYes, Ts: time.Now(),
	})

	if store.calls != 3 {
		t.Errorf("expected 2 failed attempts plus 1 success (3 calls), got %d", store.calls)
	}
}

func TestHandleGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	led := ledger.New()
	market := types.MarketIdFromBytes([]byte("m1"))
	cal := calibration.New(testCalibrationConfig())
	corr := correlation.New()
	store := &flakyStore{failures: 100}

	cfg := testResolutionConfig()
	mon := New(cfg, led, cal, corr, store, testLogger())
	mon.Handle(context.Background(), events.MarketResolved{
		MarketId: market, WinningOutcomeId: types.OutcomeYes, Ts: time.Now(),
	})

	if store.calls != cfg.MaxRetries+1 {
		t.Errorf("expected %d attempts, got %d", cfg.MaxRetries+1, store.calls)
	}
}
