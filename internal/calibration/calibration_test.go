package calibration

import (
	"math"
	"testing"
	"time"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

func testCalibrationConfig() config.CalibrationConfig {
	return config.CalibrationConfig{
		BucketCount:              10,
		PerformanceDriftMedium:   0.20,
		PerformanceDriftHigh:     0.30,
		PerformanceDriftCritical: 0.50,
		PredictionDriftMedium:    0.05,
		PredictionDriftHigh:      0.10,
		PredictionDriftCritical:  0.20,
		VolumeDriftThreshold:     0.30,
		MinPredictionsForDrift:   1,
	}
}

func prediction(market types.MarketId, strategy types.StrategyId, prob float64) types.Prediction {
	return types.Prediction{
		Id:                   "p",
		StrategyId:           strategy,
		MarketId:             market,
		OutcomeId:            types.OutcomeYes,
		PredictedProbability: prob,
		Ts:                   time.Now(),
	}
}

// TestBrierScenarioS4 reproduces spec scenario S4: probabilities 0.9, 0.6,
// 0.4, 0.1 on YES, market resolves YES, expected Brier = 0.335.
func TestBrierScenarioS4(t *testing.T) {
	t.Parallel()
	e := New(testCalibrationConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	strategy := types.StrategyMarketMaking

	for _, p := range []float64{0.9, 0.6, 0.4, 0.1} {
		e.RecordPrediction(prediction(market, strategy, p))
	}
	e.ResolveMarket(market, types.OutcomeYes)

	m := e.Compute(strategy)
	if math.Abs(m.Brier-0.335) > 1e-9 {
		t.Errorf("expected Brier 0.335, got %v", m.Brier)
	}
	if m.Count != 4 {
		t.Errorf("expected 4 resolved predictions, got %d", m.Count)
	}
}

func TestBrierBoundaryProperties(t *testing.T) {
	t.Parallel()

	// Perfect predictions -> Brier 0.
	perfect := New(testCalibrationConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	perfect.RecordPrediction(prediction(market, types.StrategySentiment, 1.0))
	perfect.RecordPrediction(prediction(market, types.StrategySentiment, 0.0))
	perfect.preds[types.StrategySentiment][1].OutcomeId = types.OutcomeNo
	perfect.ResolveMarket(market, types.OutcomeYes)
	m := perfect.Compute(types.StrategySentiment)
	if math.Abs(m.Brier) > 1e-9 {
		t.Errorf("expected Brier 0 for perfect predictions, got %v", m.Brier)
	}

	// All predictions at 0.5 -> Brier 0.25 regardless of outcome.
	coinflip := New(testCalibrationConfig())
	coinflip.RecordPrediction(prediction(market, types.StrategySentiment, 0.5))
	coinflip.RecordPrediction(prediction(market, types.StrategySentiment, 0.5))
	coinflip.ResolveMarket(market, types.OutcomeYes)
	m2 := coinflip.Compute(types.StrategySentiment)
	if math.Abs(m2.Brier-0.25) > 1e-9 {
		t.Errorf("expected Brier 0.25 for all-0.5 predictions, got %v", m2.Brier)
	}
}

func TestResolveMarketIsIdempotent(t *testing.T) {
	t.Parallel()
	e := New(testCalibrationConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	strategy := types.StrategyMarketMaking
	e.RecordPrediction(prediction(market, strategy, 0.7))

	e.ResolveMarket(market, types.OutcomeYes)
	first := e.Compute(strategy)
	e.ResolveMarket(market, types.OutcomeYes) // re-delivery, no-op
	second := e.Compute(strategy)

	if first.Brier != second.Brier || first.Count != second.Count {
		t.Errorf("expected idempotent resolution, got %+v then %+v", first, second)
	}
}

func TestBucketsAccumulateByPredictedProbability(t *testing.T) {
	t.Parallel()
	e := New(testCalibrationConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	strategy := types.StrategyPairCost
	e.RecordPrediction(prediction(market, strategy, 0.95))
	e.ResolveMarket(market, types.OutcomeYes)

	m := e.Compute(strategy)
	last := m.Buckets[len(m.Buckets)-1]
	if last.Count != 1 {
		t.Errorf("expected the 0.9-1.0 bucket to hold the one prediction, got buckets=%+v", m.Buckets)
	}
}
