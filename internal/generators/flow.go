package generators

import (
	"math"
	"sync"
	"time"

	"predictioncore/pkg/types"
)

// ToxicityMetrics are the adverse-selection indicators the market-making
// generator uses to widen its spread under toxic flow.
type ToxicityMetrics struct {
	DirectionalImbalance float64 // [0, 1]: % of fills in dominant direction
	FillVelocity         float64 // fills per minute
	ToxicityScore        float64 // [0, 1]: composite toxicity score
	IsAverse             bool
}

// flowFill is the minimal fill shape the tracker needs.
type flowFill struct {
	ts   time.Time
	side types.Side
}

// FlowTracker detects toxic order flow from a rolling window of recent
// fills — consistent one-directional fills suggest informed traders
// picking off stale quotes right before the price moves. Ported directly
// from the teacher's strategy.FlowTracker (same window/threshold/cooldown
// shape and composite-score weights), generalized to predictioncore's
// Side type.
type FlowTracker struct {
	mu sync.RWMutex

	windowDuration time.Duration
	fills          []flowFill

	toxicityThreshold float64
	cooldownPeriod    time.Duration
	maxSpreadMultiple float64

	lastToxicTime time.Time
}

func NewFlowTracker(windowDuration time.Duration, toxicityThreshold float64, cooldownPeriod time.Duration, maxSpreadMultiple float64) *FlowTracker {
	return &FlowTracker{
		windowDuration:    windowDuration,
		fills:             make([]flowFill, 0, 100),
		toxicityThreshold: toxicityThreshold,
		cooldownPeriod:    cooldownPeriod,
		maxSpreadMultiple: maxSpreadMultiple,
	}
}

// AddFill records a new fill and evicts entries outside the window.
func (ft *FlowTracker) AddFill(ts time.Time, side types.Side) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.fills = append(ft.fills, flowFill{ts: ts, side: side})
	ft.evictStaleLocked(ts)
}

func (ft *FlowTracker) evictStaleLocked(now time.Time) {
	if len(ft.fills) == 0 {
		return
	}
	cutoff := now.Add(-ft.windowDuration)
	validIdx := -1
	for i, f := range ft.fills {
		if f.ts.After(cutoff) {
			validIdx = i
			break
		}
	}
	if validIdx == -1 {
		ft.fills = ft.fills[:0]
		return
	}
	if validIdx > 0 {
		ft.fills = ft.fills[validIdx:]
	}
}

// CalculateToxicity computes the current composite toxicity score: 60%
// directional imbalance, 40% fill-velocity (teacher's weighting).
func (ft *FlowTracker) CalculateToxicity(now time.Time) ToxicityMetrics {
	ft.mu.Lock()
	ft.evictStaleLocked(now)
	ft.mu.Unlock()

	ft.mu.RLock()
	defer ft.mu.RUnlock()

	if len(ft.fills) == 0 {
		return ToxicityMetrics{}
	}

	var buyCount, sellCount int
	for _, f := range ft.fills {
		if f.side == types.Buy {
			buyCount++
		} else {
			sellCount++
		}
	}
	total := len(ft.fills)
	dominant := math.Max(float64(buyCount), float64(sellCount))
	directionalImbalance := dominant / float64(total)

	if len(ft.fills) < 2 {
		return ToxicityMetrics{
			DirectionalImbalance: directionalImbalance,
			ToxicityScore:        directionalImbalance * 0.6,
			IsAverse:             directionalImbalance > ft.toxicityThreshold,
		}
	}

	windowMinutes := ft.windowDuration.Minutes()
	fillVelocity := float64(total) / windowMinutes
	velocityFactor := math.Min(fillVelocity/3.0, 1.0)

	score := 0.6*directionalImbalance + 0.4*velocityFactor
	return ToxicityMetrics{
		DirectionalImbalance: directionalImbalance,
		FillVelocity:         fillVelocity,
		ToxicityScore:        score,
		IsAverse:             score > ft.toxicityThreshold,
	}
}

// SpreadMultiplier returns the spread widening factor to apply given
// current and recent toxicity: 1.0 under normal conditions, scaling up to
// maxSpreadMultiple while toxic or within the post-toxicity cooldown.
func (ft *FlowTracker) SpreadMultiplier(now time.Time) float64 {
	metrics := ft.CalculateToxicity(now)

	if metrics.IsAverse {
		ft.mu.Lock()
		ft.lastToxicTime = now
		ft.mu.Unlock()
	}

	ft.mu.RLock()
	inCooldown := now.Sub(ft.lastToxicTime) < ft.cooldownPeriod
	ft.mu.RUnlock()

	if !metrics.IsAverse && !inCooldown {
		return 1.0
	}

	if metrics.ToxicityScore < ft.toxicityThreshold {
		timeSinceToxic := now.Sub(ft.lastToxicTime).Seconds()
		cooldownSeconds := ft.cooldownPeriod.Seconds()
		progress := math.Min(timeSinceToxic/cooldownSeconds, 1.0)
		return 1.0 + (ft.maxSpreadMultiple-1.0)*(1.0-progress)
	}

	normalized := (metrics.ToxicityScore - ft.toxicityThreshold) / (1.0 - ft.toxicityThreshold)
	return 1.0 + (ft.maxSpreadMultiple-1.0)*math.Min(normalized*2.0, 1.0)
}
