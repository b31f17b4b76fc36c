package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/indicator"
)

// RSIDivergence hunts exhaustion turns: price printing a new extreme that
// RSI refuses to confirm
type RSIDivergence struct {
	rsiPeriod int
	window    int
}

// NewRSIDivergence creates a new instance with default parameters
func NewRSIDivergence(rsiPeriod, window int) *RSIDivergence {
	strategy := &RSIDivergence{
		rsiPeriod: 14,
		window:    7,
	}

	if rsiPeriod > 0 {
		strategy.rsiPeriod = rsiPeriod
	}
	if window > 0 {
		strategy.window = window
	}

	return strategy
}

// Name returns the strategy identifier
func (s *RSIDivergence) Name() string {
	return "rsi_divergence"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *RSIDivergence) WarmupPeriod() int {
	return s.rsiPeriod + 2*s.window + 5
}

// Evaluate compares the price extreme of the latest swing window against
// the one before it and votes when RSI diverges
func (s *RSIDivergence) Evaluate(view *core.MarketView) core.Signal {
	df := view.Primary
	if df.Len() < s.WarmupPeriod() {
		return core.Hold(s.Name(), "insufficient history")
	}

	rsi := indicator.RSI(df.Close, s.rsiPeriod)
	if math.IsNaN(rsi.Last(0)) {
		return core.Hold(s.Name(), "rsi warming up")
	}

	n := df.Len()
	recentLow, recentLowRSI := lowestWith(df.Close, rsi, n-s.window, n)
	priorLow, priorLowRSI := lowestWith(df.Close, rsi, n-2*s.window, n-s.window)
	recentHigh, recentHighRSI := highestWith(df.Close, rsi, n-s.window, n)
	priorHigh, priorHighRSI := highestWith(df.Close, rsi, n-2*s.window, n-s.window)

	snap := view.Snapshot

	// Bullish divergence: lower price low, higher RSI low
	if recentLow < priorLow && recentLowRSI > priorLowRSI+2 {
		bonus := 0.0
		if snap.RSI < 35 {
			bonus = 0.05
		}
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.70 + (recentLowRSI-priorLowRSI)/50 + bonus),
			Confidence: clamp01(0.55 + (50-snap.RSI)/100),
			Reason:     fmt.Sprintf("bullish divergence, rsi low %.1f vs %.1f", recentLowRSI, priorLowRSI),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	// Bearish divergence: higher price high, lower RSI high
	if recentHigh > priorHigh && recentHighRSI < priorHighRSI-2 {
		bonus := 0.0
		if snap.RSI > 65 {
			bonus = 0.05
		}
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.70 + (priorHighRSI-recentHighRSI)/50 + bonus),
			Confidence: clamp01(0.55 + (snap.RSI-50)/100),
			Reason:     fmt.Sprintf("bearish divergence, rsi high %.1f vs %.1f", recentHighRSI, priorHighRSI),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "no divergence")
}

// lowestWith returns the minimum of values in [from, to) along with the
// companion series value at the same index
func lowestWith(values, companion core.Series[float64], from, to int) (float64, float64) {
	low, at := values[from], from
	for i := from + 1; i < to; i++ {
		if values[i] < low {
			low, at = values[i], i
		}
	}
	return low, companion[at]
}

func highestWith(values, companion core.Series[float64], from, to int) (float64, float64) {
	high, at := values[from], from
	for i := from + 1; i < to; i++ {
		if values[i] > high {
			high, at = values[i], i
		}
	}
	return high, companion[at]
}
