package risk

import (
	"fmt"
	"time"

	"github.com/quorumtrade/quorum/core"
)

// BreakerKind identifies which limit tripped the circuit breaker
type BreakerKind string

const (
	BreakerDailyLoss       BreakerKind = "daily_loss"
	BreakerConsecutiveLoss BreakerKind = "consecutive_loss"
	BreakerRapidDrawdown   BreakerKind = "rapid_drawdown"
)

// fullHaltStreakMargin is how far past the configured streak limit the
// breaker escalates from defensive sizing to a full halt
const fullHaltStreakMargin = 3

const defensiveSizeFactor = 0.3

type equitySample struct {
	equity float64
	at     time.Time
}

// CircuitBreaker halts opens when the account bleeds too fast. It watches
// daily loss, losing streaks and rapid drawdown; a trip blocks every new
// entry until the reset instant passes.
type CircuitBreaker struct {
	cfg     core.BreakerConfig
	log     core.Logger
	publish func(core.Event)

	tripped bool
	kind    BreakerKind
	reason  string
	resetAt time.Time

	defensive bool

	equity []equitySample
}

// NewCircuitBreaker wires a breaker to the event stream. A nil publish
// func drops the events.
func NewCircuitBreaker(cfg core.BreakerConfig, log core.Logger, publish func(core.Event)) *CircuitBreaker {
	if publish == nil {
		publish = func(core.Event) {}
	}
	return &CircuitBreaker{cfg: cfg, log: log, publish: publish}
}

// Tripped reports whether opens are currently blocked. A trip whose reset
// instant has passed clears itself here.
func (b *CircuitBreaker) Tripped(now time.Time) (bool, string) {
	if b.tripped && !now.Before(b.resetAt) {
		b.clear(now)
	}
	if !b.tripped {
		return false, ""
	}
	return true, fmt.Sprintf("%s: %s", b.kind, b.reason)
}

// Defensive reports whether the losing streak has pushed sizing into
// defensive mode
func (b *CircuitBreaker) Defensive() bool { return b.defensive }

// SizeFactor returns the multiplier the risk manager applies to every
// size while the breaker is in defensive mode
func (b *CircuitBreaker) SizeFactor() float64 {
	if b.defensive {
		return defensiveSizeFactor
	}
	return 1
}

// OnTradeClosed re-evaluates the loss limits after a closed trade
func (b *CircuitBreaker) OnTradeClosed(m *Metrics, now time.Time) {
	if ret := m.DailyReturnPct(); ret <= -b.cfg.MaxDailyLossPct {
		b.trip(BreakerDailyLoss,
			fmt.Sprintf("daily return %.2f%% breached -%.2f%%", ret*100, b.cfg.MaxDailyLossPct*100),
			NextDayBoundary(now), now)
		return
	}

	streak := m.ConsecutiveLosses()
	switch {
	case streak >= b.cfg.MaxConsecutiveLosses+fullHaltStreakMargin:
		b.trip(BreakerConsecutiveLoss,
			fmt.Sprintf("%d consecutive losses", streak),
			NextDayBoundary(now), now)
	case streak >= b.cfg.MaxConsecutiveLosses:
		if !b.defensive {
			b.log.WithField("streak", streak).Warn("entering defensive sizing")
		}
		b.defensive = true
	default:
		if b.defensive {
			b.log.Info("leaving defensive sizing")
		}
		b.defensive = false
	}
}

// ObserveEquity feeds the rapid-drawdown window. Call it with the current
// account equity every tick.
func (b *CircuitBreaker) ObserveEquity(equity float64, now time.Time) {
	if equity <= 0 {
		return
	}

	cutoff := now.Add(-b.cfg.RapidDrawdownWindow)
	b.equity = append(b.equity, equitySample{equity: equity, at: now})
	start := 0
	for start < len(b.equity) && b.equity[start].at.Before(cutoff) {
		start++
	}
	b.equity = b.equity[start:]

	peak := 0.0
	for _, s := range b.equity {
		if s.equity > peak {
			peak = s.equity
		}
	}
	if peak <= 0 {
		return
	}

	if drop := (peak - equity) / peak; drop > b.cfg.RapidDrawdownPct {
		b.trip(BreakerRapidDrawdown,
			fmt.Sprintf("equity dropped %.2f%% inside %s", drop*100, b.cfg.RapidDrawdownWindow),
			now.Add(b.cfg.RapidDrawdownWindow), now)
	}
}

func (b *CircuitBreaker) trip(kind BreakerKind, reason string, resetAt, now time.Time) {
	if b.tripped {
		return
	}

	b.tripped = true
	b.kind = kind
	b.reason = reason
	b.resetAt = resetAt

	b.log.WithFields(map[string]any{
		"kind":     string(kind),
		"reason":   reason,
		"reset_at": resetAt,
	}).Error("circuit breaker tripped")

	b.publish(core.BreakerTripped{
		Time:    now,
		Kind:    string(kind),
		Reason:  reason,
		ResetAt: resetAt,
	})
}

func (b *CircuitBreaker) clear(now time.Time) {
	kind := b.kind
	b.tripped = false
	b.kind = ""
	b.reason = ""
	b.resetAt = time.Time{}

	b.log.WithField("kind", string(kind)).Info("circuit breaker cleared")
	b.publish(core.BreakerCleared{Time: now, Kind: string(kind)})
}
