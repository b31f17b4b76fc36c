package strategies

import (
	"fmt"

	"github.com/quorumtrade/quorum/core"
)

// VolumeBreakout votes when price clears the recent range on a volume
// surge: the surge is what separates a breakout from a stop hunt
type VolumeBreakout struct {
	volumeMultiplier float64
	lookback         int
}

// NewVolumeBreakout creates a new instance with default parameters
func NewVolumeBreakout(volumeMultiplier float64, lookback int) *VolumeBreakout {
	strategy := &VolumeBreakout{
		volumeMultiplier: 2.0,
		lookback:         20,
	}

	if volumeMultiplier > 0 {
		strategy.volumeMultiplier = volumeMultiplier
	}
	if lookback > 0 {
		strategy.lookback = lookback
	}

	return strategy
}

// Name returns the strategy identifier
func (s *VolumeBreakout) Name() string {
	return "volume_breakout"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *VolumeBreakout) WarmupPeriod() int {
	return s.lookback + 5
}

// Evaluate votes with a range break backed by a volume surge
func (s *VolumeBreakout) Evaluate(view *core.MarketView) core.Signal {
	df := view.Primary
	if df.Len() < s.WarmupPeriod() {
		return core.Hold(s.Name(), "insufficient history")
	}

	snap := view.Snapshot
	if snap.VolumeRatio < s.volumeMultiplier {
		return core.Hold(s.Name(), "no volume surge")
	}

	price := df.Close.Last(0)

	// Range of the lookback window, excluding the current candle
	rangeHigh := df.High.Last(1)
	rangeLow := df.Low.Last(1)
	for i := 2; i <= s.lookback; i++ {
		if df.High.Last(i) > rangeHigh {
			rangeHigh = df.High.Last(i)
		}
		if df.Low.Last(i) < rangeLow {
			rangeLow = df.Low.Last(i)
		}
	}

	// Margin past the range edge, ATR-scaled so pairs are comparable
	margin := func(edge float64) float64 {
		if snap.ATR <= 0 {
			return 0
		}
		m := (price - edge) / snap.ATR
		if m < 0 {
			m = -m
		}
		if m > 0.5 {
			m = 0.5
		}
		return m
	}

	if price > rangeHigh && df.Close.Last(0) > df.Open.Last(0) {
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.72 + (snap.VolumeRatio-s.volumeMultiplier)*0.04 + margin(rangeHigh)*0.2),
			Confidence: clamp01(0.55 + snap.VolumeRatio/20),
			Reason:     fmt.Sprintf("broke %d-bar high on %.1fx volume", s.lookback, snap.VolumeRatio),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	if price < rangeLow && df.Close.Last(0) < df.Open.Last(0) {
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.72 + (snap.VolumeRatio-s.volumeMultiplier)*0.04 + margin(rangeLow)*0.2),
			Confidence: clamp01(0.55 + snap.VolumeRatio/20),
			Reason:     fmt.Sprintf("broke %d-bar low on %.1fx volume", s.lookback, snap.VolumeRatio),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "volume surge without range break")
}
