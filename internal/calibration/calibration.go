// Package calibration scores each strategy's predicted probabilities
// against realized outcomes and watches for drift (spec.md §4.8, C8). Like
// attribution, it only subscribes to resolution-driven updates — no
// back-pointer into the ledger or pipeline (spec.md §9).
package calibration

import (
	"math"
	"sync"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// logLossEpsilon clamps predicted probabilities away from 0/1 before
// taking a log, per spec.md §4.8.
const logLossEpsilon = 1e-10

// Engine holds every Prediction recorded for a strategy and computes
// Brier/log-loss/calibration-bucket metrics and drift alerts on demand.
type Engine struct {
	mu    sync.RWMutex
	cfg   config.CalibrationConfig
	preds map[types.StrategyId][]types.Prediction
}

func New(cfg config.CalibrationConfig) *Engine {
	return &Engine{cfg: cfg, preds: make(map[types.StrategyId][]types.Prediction)}
}

// RecordPrediction inserts a strategy's forecast at signal-emission time,
// actual_outcome nil until resolution.
func (e *Engine) RecordPrediction(p types.Prediction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preds[p.StrategyId] = append(e.preds[p.StrategyId], p)
}

// ResolveMarket sets actual_outcome on every still-unresolved Prediction
// for the given market (spec.md §4.8 stage 1), 1 if its outcome won, else
// 0. Idempotent: a Prediction already carrying an actual_outcome is left
// untouched, so re-delivery of the same resolution is a no-op (spec.md
// §4.9).
func (e *Engine) ResolveMarket(marketID types.MarketId, winningOutcome types.OutcomeId) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for strategy, list := range e.preds {
		for i := range list {
			p := &list[i]
			if p.MarketId != marketID || p.ActualOutcome != nil {
				continue
			}
			outcome := 0
			if p.OutcomeId == winningOutcome {
				outcome = 1
			}
			p.ActualOutcome = &outcome
		}
		e.preds[strategy] = list
	}
}

// Metrics is the set of scalar calibration scores over one strategy's
// resolved predictions (spec.md §4.8).
type Metrics struct {
	StrategyId types.StrategyId
	Count      int
	Brier      float64
	LogLoss    float64
	Buckets    []Bucket
	ECE        float64
}

// Bucket is one of the 10 equal-width probability buckets.
type Bucket struct {
	Lo, Hi        float64
	Count         int
	AvgPredicted  float64
	ActualRate    float64
	AbsError      float64
}

// Compute returns Brier, log-loss, and bucketed calibration metrics over
// every resolved Prediction for the strategy (spec.md §4.8). Unresolved
// predictions (actual_outcome == nil) are excluded.
func (e *Engine) Compute(strategyID types.StrategyId) Metrics {
	e.mu.RLock()
	resolved := make([]types.Prediction, 0)
	for _, p := range e.preds[strategyID] {
		if p.ActualOutcome != nil {
			resolved = append(resolved, p)
		}
	}
	e.mu.RUnlock()

	m := Metrics{StrategyId: strategyID, Count: len(resolved)}
	if len(resolved) == 0 {
		m.Buckets = e.emptyBuckets()
		return m
	}

	var sumSquaredErr, sumLogLoss float64
	bucketCount := e.cfg.BucketCount
	if bucketCount <= 0 {
		bucketCount = 10
	}
	buckets := make([]Bucket, bucketCount)
	width := 1.0 / float64(bucketCount)
	for i := range buckets {
		buckets[i].Lo = float64(i) * width
		buckets[i].Hi = float64(i+1) * width
	}

	sums := make([]float64, bucketCount)   // sum of predicted prob per bucket
	wins := make([]float64, bucketCount)   // sum of actual outcome per bucket
	counts := make([]int, bucketCount)

	for _, p := range resolved {
		a := float64(*p.ActualOutcome)
		pr := p.PredictedProbability
		sumSquaredErr += (pr - a) * (pr - a)

		clamped := math.Min(math.Max(pr, logLossEpsilon), 1-logLossEpsilon)
		sumLogLoss += -(a*math.Log(clamped) + (1-a)*math.Log(1-clamped))

		idx := int(pr * float64(bucketCount))
		if idx >= bucketCount {
			idx = bucketCount - 1
		}
		if idx < 0 {
			idx = 0
		}
		sums[idx] += pr
		wins[idx] += a
		counts[idx]++
	}

	m.Brier = sumSquaredErr / float64(len(resolved))
	m.LogLoss = sumLogLoss / float64(len(resolved))

	var weightedError float64
	for i := range buckets {
		buckets[i].Count = counts[i]
		if counts[i] == 0 {
			continue
		}
		buckets[i].AvgPredicted = sums[i] / float64(counts[i])
		buckets[i].ActualRate = wins[i] / float64(counts[i])
		buckets[i].AbsError = math.Abs(buckets[i].AvgPredicted - buckets[i].ActualRate)
		weightedError += buckets[i].AbsError * float64(counts[i])
	}
	m.ECE = weightedError / float64(len(resolved))
	m.Buckets = buckets
	return m
}

func (e *Engine) emptyBuckets() []Bucket {
	n := e.cfg.BucketCount
	if n <= 0 {
		n = 10
	}
	width := 1.0 / float64(n)
	out := make([]Bucket, n)
	for i := range out {
		out[i] = Bucket{Lo: float64(i) * width, Hi: float64(i+1) * width}
	}
	return out
}
