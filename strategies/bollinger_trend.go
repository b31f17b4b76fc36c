package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
)

// BollingerTrend follows volatility breakouts: it votes with the move when
// price closes outside a Bollinger band while the bands are expanding
type BollingerTrend struct {
	minBandwidth   float64
	minVolumeRatio float64
}

// NewBollingerTrend creates a new instance with default parameters
func NewBollingerTrend(minBandwidth, minVolumeRatio float64) *BollingerTrend {
	strategy := &BollingerTrend{
		minBandwidth:   2.0,
		minVolumeRatio: 1.2,
	}

	if minBandwidth > 0 {
		strategy.minBandwidth = minBandwidth
	}
	if minVolumeRatio > 0 {
		strategy.minVolumeRatio = minVolumeRatio
	}

	return strategy
}

// Name returns the strategy identifier
func (s *BollingerTrend) Name() string {
	return "bollinger_trend"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *BollingerTrend) WarmupPeriod() int {
	return 21
}

// Evaluate votes with a band breakout confirmed by volume
func (s *BollingerTrend) Evaluate(view *core.MarketView) core.Signal {
	snap := view.Snapshot
	if view.Primary.Len() < s.WarmupPeriod() || math.IsNaN(snap.PercentB) {
		return core.Hold(s.Name(), "insufficient history")
	}

	// Narrow bands mean any band touch is noise, not a breakout
	if snap.BandwidthPct < s.minBandwidth {
		return core.Hold(s.Name(), "bands too narrow")
	}

	volumeConfirmed := snap.VolumeRatio >= s.minVolumeRatio

	// Long conditions:
	// 1. Close beyond the upper band
	// 2. Volume above its recent average
	// 3. Price still above the middle of the trend (EMA21)
	if snap.PercentB > 1 && volumeConfirmed && snap.Price > snap.EMA21 {
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.72 + (snap.PercentB-1)*1.5 + (snap.VolumeRatio-s.minVolumeRatio)*0.05),
			Confidence: clamp01(0.5 + snap.BandwidthPct/10),
			Reason:     fmt.Sprintf("breakout above upper band, %%b=%.2f vol=%.1fx", snap.PercentB, snap.VolumeRatio),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	// Short conditions mirror the long side below the lower band
	if snap.PercentB < 0 && volumeConfirmed && snap.Price < snap.EMA21 {
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.72 + (-snap.PercentB)*1.5 + (snap.VolumeRatio-s.minVolumeRatio)*0.05),
			Confidence: clamp01(0.5 + snap.BandwidthPct/10),
			Reason:     fmt.Sprintf("breakdown below lower band, %%b=%.2f vol=%.1fx", snap.PercentB, snap.VolumeRatio),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "price inside bands")
}
