package regime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
)

func snapshot(adx, bandwidth float64) core.IndicatorSnapshot {
	return core.IndicatorSnapshot{ADX: adx, BandwidthPct: bandwidth}
}

func TestDetectorStrongTrendOverride(t *testing.T) {
	detector := NewDetector(core.NewNopLogger())

	// High ADX with moderate bandwidth used to be read as ranging because
	// the bandwidth sits below the standard trending threshold
	result := detector.Classify(snapshot(36.8, 2.41))

	require.Equal(t, Trending, result.Regime)
	require.Equal(t, "strong trend override", result.Reason)
	require.Greater(t, result.Confidence, 0.0)
	require.LessOrEqual(t, result.Confidence, 1.0)

	require.Contains(t, AllowedStrategies(result.Regime), "ema_cross")
}

func TestDetectorBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		adx       float64
		bandwidth float64
		want      Regime
	}{
		{"just below both range thresholds", 19.9, 1.9, Ranging},
		{"strong trend just above thresholds", 35.1, 2.1, Trending},
		{"adx at range threshold", 20.0, 1.9, Transitioning},
		{"strong adx but bandwidth too tight", 35.1, 2.0, Transitioning},
		{"standard trend", 31.0, 3.2, Trending},
		{"moderate adx below standard trend", 28.0, 2.6, Transitioning},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			detector := NewDetector(core.NewNopLogger())
			result := detector.Classify(snapshot(tc.adx, tc.bandwidth))
			require.Equal(t, tc.want, result.Regime)
		})
	}
}

func TestDetectorHysteresis(t *testing.T) {
	detector := NewDetector(core.NewNopLogger())

	require.Equal(t, Trending, detector.Classify(snapshot(36.8, 2.41)).Regime)

	// The same readings classify as transitioning on a fresh detector, but
	// an established trend holds above the exit thresholds
	held := detector.Classify(snapshot(28.0, 2.6))
	require.Equal(t, Trending, held.Regime)
	require.Equal(t, "trend hysteresis", held.Reason)

	// Below the exit ADX the trend is released
	require.Equal(t, Transitioning, detector.Classify(snapshot(26.0, 2.6)).Regime)
	require.Equal(t, Transitioning, detector.Previous())
}

func TestDetectorIndicatorsUnavailable(t *testing.T) {
	detector := NewDetector(core.NewNopLogger())

	require.Equal(t, Trending, detector.Classify(snapshot(36.8, 2.41)).Regime)

	result := detector.Classify(snapshot(math.NaN(), 2.41))
	require.Equal(t, Trending, result.Regime)
	require.Zero(t, result.Confidence)
	require.Equal(t, "indicators unavailable", result.Reason)
	require.Equal(t, Trending, detector.Previous())
}

func TestAllowedStrategies(t *testing.T) {
	trending := AllowedStrategies(Trending)
	ranging := AllowedStrategies(Ranging)
	transitioning := AllowedStrategies(Transitioning)

	require.Contains(t, trending, "ema_cross")
	require.NotContains(t, ranging, "ema_cross")

	require.Contains(t, ranging, "rsi_divergence")
	require.NotContains(t, trending, "rsi_divergence")

	// The composite voter stays active in every regime
	for _, allowed := range [][]string{trending, ranging, transitioning} {
		require.Contains(t, allowed, "composite_score")
	}
}
