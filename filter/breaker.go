package filter

import (
	"context"
	"time"
)

// TripChecker is the slice of the circuit breaker the pipeline needs
type TripChecker interface {
	Tripped(now time.Time) (bool, string)
}

// BreakerGate rejects every open while the account circuit breaker is
// tripped. It runs first so a halted account never burns plugin budget.
type BreakerGate struct {
	breaker TripChecker
}

func NewBreakerGate(breaker TripChecker) *BreakerGate {
	return &BreakerGate{breaker: breaker}
}

func (g *BreakerGate) Name() string { return "circuit_breaker" }

func (g *BreakerGate) Check(_ context.Context, d *Decision) Verdict {
	now := d.Signal.Time
	if now.IsZero() {
		now = time.Now()
	}

	if tripped, reason := g.breaker.Tripped(now); tripped {
		return reject("breaker tripped: " + reason)
	}
	return pass("breaker clear")
}
