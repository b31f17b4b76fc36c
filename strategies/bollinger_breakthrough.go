package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
)

// BollingerBreakthrough fades band touches in quiet markets: buy the lower
// band, sell the upper one, but only while volatility stays contained
type BollingerBreakthrough struct {
	maxBandwidth float64
	rsiPadding   float64
}

// NewBollingerBreakthrough creates a new instance with default parameters
func NewBollingerBreakthrough(maxBandwidth, rsiPadding float64) *BollingerBreakthrough {
	strategy := &BollingerBreakthrough{
		maxBandwidth: 4.0,
		rsiPadding:   15,
	}

	if maxBandwidth > 0 {
		strategy.maxBandwidth = maxBandwidth
	}
	if rsiPadding > 0 {
		strategy.rsiPadding = rsiPadding
	}

	return strategy
}

// Name returns the strategy identifier
func (s *BollingerBreakthrough) Name() string {
	return "bollinger_breakthrough"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *BollingerBreakthrough) WarmupPeriod() int {
	return 21
}

// Evaluate fades a band touch when RSI confirms the exhaustion
func (s *BollingerBreakthrough) Evaluate(view *core.MarketView) core.Signal {
	snap := view.Snapshot
	if view.Primary.Len() < s.WarmupPeriod() || math.IsNaN(snap.PercentB) || math.IsNaN(snap.RSI) {
		return core.Hold(s.Name(), "insufficient history")
	}

	// Mean reversion only works while the market is actually ranging;
	// expanding bands are a trend, not an opportunity to fade
	if snap.BandwidthPct > s.maxBandwidth {
		return core.Hold(s.Name(), "bands expanding, no fade")
	}

	oversold := 50 - s.rsiPadding
	overbought := 50 + s.rsiPadding

	// Long conditions:
	// 1. Price at or through the lower band
	// 2. RSI in the oversold zone
	if snap.PercentB <= 0.05 && snap.RSI < oversold {
		depth := 0.05 - snap.PercentB
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.70 + depth*2 + (oversold-snap.RSI)/100),
			Confidence: clamp01(0.6 + (s.maxBandwidth-snap.BandwidthPct)/20),
			Reason:     fmt.Sprintf("lower band fade, %%b=%.2f rsi=%.1f", snap.PercentB, snap.RSI),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	// Short conditions mirror the long side at the upper band
	if snap.PercentB >= 0.95 && snap.RSI > overbought {
		depth := snap.PercentB - 0.95
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.70 + depth*2 + (snap.RSI-overbought)/100),
			Confidence: clamp01(0.6 + (s.maxBandwidth-snap.BandwidthPct)/20),
			Reason:     fmt.Sprintf("upper band fade, %%b=%.2f rsi=%.1f", snap.PercentB, snap.RSI),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "no band touch")
}
