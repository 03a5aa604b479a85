// Package generators implements the four signal-generating strategies
// (spec.md §4.4, C5): market making, pair-cost arbitrage, spread/logical
// arbitrage, and sentiment-driven signals. Each is a concrete type with its
// own Generate method rather than a shared polymorphic interface — the
// pipeline dispatches to the concrete generator that matches the inbound
// event kind instead of looping over an interface slice (spec.md §9
// redesign flag: tagged dispatch in place of dynamic trait objects).
package generators

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newSignalID generates an opaque signal identifier.
func newSignalID() string {
	return uuid.NewString()
}

// reasoningf builds a Signal.Reasoning string — a small helper so every
// generator's human-readable explanation is built the same way.
func reasoningf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// expire returns a pointer to now+ttl for Signal.ExpiresAt.
func expire(now time.Time, ttl time.Duration) *time.Time {
	t := now.Add(ttl)
	return &t
}
