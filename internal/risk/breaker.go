package risk

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's state machine (spec.md §4.9):
// Idle (normal operation) -> Tripped (cooldown, auto-recovers to Idle) ->
// HardTripped (violation budget exhausted for the day, stays tripped until
// end of day — clears at the next UTC calendar day, or via explicit Reset
// sooner).
type BreakerState string

const (
	BreakerIdle        BreakerState = "IDLE"
	BreakerTripped      BreakerState = "TRIPPED"
	BreakerHardTripped BreakerState = "HARD_TRIPPED"
)

// breaker is the circuit breaker itself: Idle <-> Tripped is a liveness
// property (spec.md testable property 5 — a soft trip always eventually
// recovers once its cooldown elapses), HardTripped ignores the cooldown and
// holds until the next UTC calendar day or Reset.
type breaker struct {
	mu sync.Mutex

	state       BreakerState
	trippedAt   time.Time
	cooldown    time.Duration
	violations  int
	violationDay string
	maxViolationsPerDay int
	lastReason  string
}

func newBreaker(cooldown time.Duration, maxViolationsPerDay int) *breaker {
	return &breaker{
		state:               BreakerIdle,
		cooldown:            cooldown,
		maxViolationsPerDay: maxViolationsPerDay,
	}
}

// State reports the current breaker state, auto-clearing an expired
// Tripped cooldown back to Idle first (spec.md property 5: liveness).
func (b *breaker) State(now time.Time) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeClear(now)
	return b.state
}

func (b *breaker) maybeClear(now time.Time) {
	if b.state == BreakerTripped && now.After(b.trippedAt.Add(b.cooldown)) {
		b.state = BreakerIdle
		return
	}
	if b.state == BreakerHardTripped && now.UTC().Format("2006-01-02") != b.violationDay {
		b.state = BreakerIdle
		b.violations = 0
	}
}

// Trip records a violation for the calendar day and escalates the breaker:
// the first violations of a day soft-trip (Tripped, auto-recovers after
// cooldown); once MaxViolationsPerDay is reached within the same day the
// breaker hard-trips and stays down regardless of cooldown.
func (b *breaker) Trip(now time.Time, reason string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	day := now.UTC().Format("2006-01-02")
	if day != b.violationDay {
		b.violationDay = day
		b.violations = 0
	}
	b.violations++

	b.trippedAt = now
	b.lastReason = reason
	if b.violations >= b.maxViolationsPerDay {
		b.state = BreakerHardTripped
	} else if b.state != BreakerHardTripped {
		b.state = BreakerTripped
	}
	return b.state
}

// Reset manually clears a HardTripped breaker before its calendar-day
// auto-clear (operator intervention).
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerIdle
	b.violations = 0
}

// Violations returns the violation count for the current calendar day.
func (b *breaker) Violations(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	day := now.UTC().Format("2006-01-02")
	if day != b.violationDay {
		return 0
	}
	return b.violations
}
