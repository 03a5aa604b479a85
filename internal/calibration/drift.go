package calibration

import (
	"sync"
	"time"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

// DriftSeverity is the escalation tier for a detected drift alert.
type DriftSeverity string

const (
	DriftMedium   DriftSeverity = "MEDIUM"
	DriftHigh     DriftSeverity = "HIGH"
	DriftCritical DriftSeverity = "CRITICAL"
)

// DriftKind names which of the three drift checks fired.
type DriftKind string

const (
	DriftPerformance DriftKind = "PERFORMANCE"
	DriftPrediction  DriftKind = "PREDICTION"
	DriftVolume      DriftKind = "VOLUME"
)

// DriftAlert reports one drift check's finding for a strategy over a
// window (spec.md §4.8).
type DriftAlert struct {
	StrategyId types.StrategyId
	Kind       DriftKind
	Severity   DriftSeverity
	Detail     string
}

// WindowStats summarizes one evaluation window's worth of a strategy's
// trading activity. Calibration never reads the ledger or attribution
// engine directly (spec.md §9 one-way dependencies) — callers compute
// these from internal/attribution.Rollup and internal/calibration.Compute
// and pass them in.
type WindowStats struct {
	TradeCount     int
	AvgPnLPerTrade float64
	Brier          float64
}

type ackKey struct {
	strategy  types.StrategyId
	kind      DriftKind
	windowEnd time.Time
}

// DriftDetector compares a recent window against a 3x-length prior window
// (spec.md §4.8) and de-duplicates repeat alerts for the same strategy,
// kind, and window end against ones already acknowledged.
type DriftDetector struct {
	mu       sync.Mutex
	medium   float64 // performance decline fraction
	high     float64
	critical float64
	predMed  float64 // Brier delta
	predHigh float64
	predCrit float64
	volume   float64 // trade-count drop fraction
	minPreds int
	acked    map[ackKey]bool
}

func NewDriftDetector(cfg config.CalibrationConfig) *DriftDetector {
	return &DriftDetector{
		medium:   cfg.PerformanceDriftMedium,
		high:     cfg.PerformanceDriftHigh,
		critical: cfg.PerformanceDriftCritical,
		predMed:  cfg.PredictionDriftMedium,
		predHigh: cfg.PredictionDriftHigh,
		predCrit: cfg.PredictionDriftCritical,
		volume:   cfg.VolumeDriftThreshold,
		minPreds: cfg.MinPredictionsForDrift,
		acked:    make(map[ackKey]bool),
	}
}

// Acknowledge suppresses future identical alerts (same strategy, kind,
// window end) from Detect (spec.md §4.8: "de-duplicated against
// acknowledged alerts within the same window").
func (d *DriftDetector) Acknowledge(strategyID types.StrategyId, kind DriftKind, windowEnd time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acked[ackKey{strategyID, kind, windowEnd}] = true
}

// Detect runs all three checks and returns the alerts that fired and
// aren't already acknowledged for this window.
func (d *DriftDetector) Detect(strategyID types.StrategyId, recent, prior WindowStats, windowEnd time.Time) []DriftAlert {
	d.mu.Lock()
	defer d.mu.Unlock()

	var alerts []DriftAlert

	if prior.AvgPnLPerTrade > 0 {
		decline := (prior.AvgPnLPerTrade - recent.AvgPnLPerTrade) / prior.AvgPnLPerTrade
		if sev, ok := severity(decline, d.medium, d.high, d.critical); ok {
			alerts = append(alerts, DriftAlert{StrategyId: strategyID, Kind: DriftPerformance, Severity: sev})
		}
	}

	if recent.TradeCount >= d.minPreds && prior.TradeCount >= d.minPreds {
		delta := recent.Brier - prior.Brier
		if sev, ok := severity(delta, d.predMed, d.predHigh, d.predCrit); ok {
			alerts = append(alerts, DriftAlert{StrategyId: strategyID, Kind: DriftPrediction, Severity: sev})
		}
	}

	if prior.TradeCount > 0 {
		drop := float64(prior.TradeCount-recent.TradeCount) / float64(prior.TradeCount)
		if drop > d.volume {
			alerts = append(alerts, DriftAlert{StrategyId: strategyID, Kind: DriftVolume, Severity: DriftMedium})
		}
	}

	var out []DriftAlert
	for _, a := range alerts {
		if d.acked[ackKey{strategyID, a.Kind, windowEnd}] {
			continue
		}
		out = append(out, a)
	}
	return out
}

// severity maps a measured delta against medium/high/critical thresholds,
// returning the highest tier crossed, or ok=false if none.
func severity(value, medium, high, critical float64) (DriftSeverity, bool) {
	switch {
	case value >= critical:
		return DriftCritical, true
	case value >= high:
		return DriftHigh, true
	case value >= medium:
		return DriftMedium, true
	default:
		return "", false
	}
}
