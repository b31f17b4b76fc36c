package metric

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayoff(t *testing.T) {
	// avg win 20, avg loss 10
	values := []float64{20, 20, -10, -10}
	require.InDelta(t, 2.0, Payoff(values), 1e-9)

	// no losses falls back to the sentinel ratio
	require.Equal(t, 10.0, Payoff([]float64{5, 15}))
	require.Equal(t, 10.0, Payoff(nil))
}

func TestProfitFactor(t *testing.T) {
	values := []float64{30, 30, -20}
	require.InDelta(t, 3.0, ProfitFactor(values), 1e-9)
	require.Equal(t, 10.0, ProfitFactor([]float64{30, 30}))
}

func TestWinRate(t *testing.T) {
	require.InDelta(t, 0.75, WinRate([]float64{1, 2, 0, -3}), 1e-9)
	require.Equal(t, 0.0, WinRate(nil))
}

func TestExpectancy(t *testing.T) {
	// 50% wins of 20, 50% losses of 10: 0.5*20 - 0.5*10 = 5
	values := []float64{20, 20, -10, -10}
	require.InDelta(t, 5.0, Expectancy(values), 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	// equity: 10, 30, 10, -10, 20; peak 30, trough -10
	values := []float64{10, 20, -20, -20, 30}
	require.InDelta(t, 40.0, MaxDrawdown(values), 1e-9)
	require.Equal(t, 0.0, MaxDrawdown([]float64{5, 5}))
}

func TestBootstrap(t *testing.T) {
	values := []float64{10, 12, 9, 11, 10, 13, 8, 10, 11, 9}

	interval := Bootstrap(values, Mean, 500, 0.95)

	require.Less(t, interval.Lower, interval.Upper)
	require.InDelta(t, 10.3, interval.Mean, 2.0)
	require.GreaterOrEqual(t, interval.Mean, interval.Lower)
	require.LessOrEqual(t, interval.Mean, interval.Upper)
	require.Greater(t, interval.StdDev, 0.0)
}

func TestBootstrap_Empty(t *testing.T) {
	require.Equal(t, Interval{}, Bootstrap(nil, Mean, 100, 0.95))
	require.Equal(t, Interval{}, Bootstrap([]float64{1}, Mean, 0, 0.95))
}
