package exchange

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
)

func testBackoffConfig() core.BreakerConfig {
	return core.BreakerConfig{
		ErrorMinBackoff: time.Second,
		ErrorMaxBackoff: 8 * time.Second,
		ErrorResetAfter: time.Minute,
	}
}

func TestBackoffDoublesPerConsecutiveError(t *testing.T) {
	controller := NewBackoffController("binance", testBackoffConfig(), nil, core.NewNopLogger())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gatewayErr := errors.New("connection reset")

	state := controller.Observe(now, gatewayErr)
	require.Equal(t, 1, state.Consecutive)
	require.Equal(t, now.Add(time.Second), state.PausedUntil)

	require.ErrorIs(t, controller.Ready(now), ErrPaused)
	require.True(t, controller.Paused(now.Add(500*time.Millisecond)))
	require.NoError(t, controller.Ready(now.Add(1100*time.Millisecond)))

	state = controller.Observe(now.Add(2*time.Second), gatewayErr)
	require.Equal(t, 2, state.Consecutive)
	require.Equal(t, now.Add(4*time.Second), state.PausedUntil)

	state = controller.Observe(now.Add(5*time.Second), gatewayErr)
	require.Equal(t, 3, state.Consecutive)
	require.Equal(t, now.Add(9*time.Second), state.PausedUntil)
}

func TestBackoffCapsAtMax(t *testing.T) {
	controller := NewBackoffController("binance", testBackoffConfig(), nil, core.NewNopLogger())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gatewayErr := errors.New("connection reset")

	var state BackoffState
	for i := 0; i < 10; i++ {
		state = controller.Observe(now, gatewayErr)
	}

	require.Equal(t, 10, state.Consecutive)
	require.Equal(t, now.Add(8*time.Second), state.PausedUntil)
}

func TestBackoffFreshStreakAfterQuietStretch(t *testing.T) {
	controller := NewBackoffController("binance", testBackoffConfig(), nil, core.NewNopLogger())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gatewayErr := errors.New("connection reset")

	controller.Observe(now, gatewayErr)
	controller.Observe(now.Add(2*time.Second), gatewayErr)

	// Beyond resetAfter the streak restarts at one
	state := controller.Observe(now.Add(5*time.Minute), gatewayErr)
	require.Equal(t, 1, state.Consecutive)
	require.Equal(t, now.Add(5*time.Minute).Add(time.Second), state.PausedUntil)
}

func TestBackoffSuccessClearsAfterResetWindow(t *testing.T) {
	controller := NewBackoffController("binance", testBackoffConfig(), nil, core.NewNopLogger())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gatewayErr := errors.New("connection reset")

	controller.Observe(now, gatewayErr)

	// A success inside the reset window keeps the streak
	controller.Success(now.Add(10 * time.Second))
	require.Equal(t, 1, controller.State().Consecutive)

	controller.Success(now.Add(2 * time.Minute))
	require.Equal(t, 0, controller.State().Consecutive)
	require.NoError(t, controller.Ready(now.Add(2*time.Minute)))
}

func TestBackoffPublishesEvent(t *testing.T) {
	var published []core.Event
	publish := func(event core.Event) { published = append(published, event) }

	controller := NewBackoffController("binance", testBackoffConfig(), publish, core.NewNopLogger())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := core.NewError(core.ErrKindRateLimit, "ticker", errors.New("429"))
	controller.Observe(now, err)

	require.Len(t, published, 1)
	event, ok := published[0].(core.GatewayBackoff)
	require.True(t, ok)
	require.Equal(t, "binance", event.Exchange)
	require.Equal(t, core.ErrKindRateLimit, event.Kind)
	require.Equal(t, now.Add(time.Second), event.Until)
}
