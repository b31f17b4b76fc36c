package exchange

import (
	"errors"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/quorumtrade/quorum/core"
)

// ErrPaused is returned by Ready while the gateway is inside a backoff
// window
var ErrPaused = errors.New("gateway paused by backoff")

// BackoffState is the observable error state of one gateway
type BackoffState struct {
	LastKind    core.ErrorKind
	Consecutive int
	PausedUntil time.Time
}

// BackoffController turns classified gateway failures into pause windows.
// Each consecutive failure doubles the pause from min up to max; an error
// free stretch of resetAfter clears the streak. The bot consults Ready
// before gateway calls and parks in its paused state while a window is
// open.
type BackoffController struct {
	exchange   string
	resetAfter time.Duration
	curve      *backoff.Backoff
	publish    func(core.Event)
	log        core.Logger

	mu          sync.Mutex
	state       BackoffState
	lastErrorAt time.Time
}

// NewBackoffController creates a controller for the named exchange.
// Non-positive durations fall back to one second, one minute and five
// minutes respectively.
func NewBackoffController(exchange string, cfg core.BreakerConfig, publish func(core.Event), log core.Logger) *BackoffController {
	minBackoff := cfg.ErrorMinBackoff
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff := cfg.ErrorMaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = time.Minute
	}
	resetAfter := cfg.ErrorResetAfter
	if resetAfter <= 0 {
		resetAfter = 5 * time.Minute
	}
	if publish == nil {
		publish = func(core.Event) {}
	}
	if log == nil {
		log = core.NewNopLogger()
	}

	return &BackoffController{
		exchange:   exchange,
		resetAfter: resetAfter,
		curve: &backoff.Backoff{
			Min:    minBackoff,
			Max:    maxBackoff,
			Factor: 2,
		},
		publish: publish,
		log:     log,
	}
}

// Observe registers a gateway failure and opens or extends the pause
// window
func (c *BackoffController) Observe(now time.Time, err error) BackoffState {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A failure after a long quiet stretch starts a fresh streak
	if c.state.Consecutive > 0 && now.Sub(c.lastErrorAt) > c.resetAfter {
		c.state.Consecutive = 0
	}

	kind := core.KindOf(err)
	c.state.Consecutive++
	c.state.LastKind = kind
	c.lastErrorAt = now

	pause := c.curve.ForAttempt(float64(c.state.Consecutive - 1))
	c.state.PausedUntil = now.Add(pause)

	c.log.WithFields(map[string]any{
		"exchange":    c.exchange,
		"kind":        string(kind),
		"consecutive": c.state.Consecutive,
		"pause":       pause.String(),
	}).WithError(err).Warn("gateway error, backing off")

	c.publish(core.GatewayBackoff{
		Time:     now,
		Exchange: c.exchange,
		Kind:     kind,
		Until:    c.state.PausedUntil,
	})

	return c.state
}

// Success registers a healthy gateway call. Once resetAfter has elapsed
// since the last failure the streak is cleared.
func (c *BackoffController) Success(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Consecutive == 0 {
		return
	}
	if now.Sub(c.lastErrorAt) < c.resetAfter {
		return
	}

	c.log.WithField("exchange", c.exchange).Debug("gateway recovered, backoff reset")
	c.state = BackoffState{}
}

// Paused reports whether a pause window is open
func (c *BackoffController) Paused(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.state.PausedUntil)
}

// Ready returns ErrPaused while a pause window is open
func (c *BackoffController) Ready(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.state.PausedUntil) {
		return ErrPaused
	}
	return nil
}

// State returns a copy of the current backoff state
func (c *BackoffController) State() BackoffState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
