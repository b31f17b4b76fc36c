package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/indicator"
)

// ADXTrend joins an established directional move: rising ADX above its
// floor with a clear winner between +DI and -DI
type ADXTrend struct {
	minADX float64
}

// NewADXTrend creates a new instance with default parameters
func NewADXTrend(minADX float64) *ADXTrend {
	strategy := &ADXTrend{minADX: 25}
	if minADX > 0 {
		strategy.minADX = minADX
	}
	return strategy
}

// Name returns the strategy identifier
func (s *ADXTrend) Name() string {
	return "adx_trend"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *ADXTrend) WarmupPeriod() int {
	return 30
}

// Evaluate votes in the direction of the dominant DI while ADX is rising
func (s *ADXTrend) Evaluate(view *core.MarketView) core.Signal {
	df := view.Primary
	if df.Len() < s.WarmupPeriod() {
		return core.Hold(s.Name(), "insufficient history")
	}

	adx := indicator.ADX(df.High, df.Low, df.Close, 14)
	if math.IsNaN(adx.Last(0)) || math.IsNaN(adx.Last(1)) {
		return core.Hold(s.Name(), "adx warming up")
	}

	snap := view.Snapshot

	// A fading ADX means the trend is exhaling; joining it late is how
	// trend followers donate money
	if adx.Last(0) < s.minADX || adx.Last(0) < adx.Last(1) {
		return core.Hold(s.Name(), "no rising trend")
	}

	diGap := snap.PlusDI - snap.MinusDI
	strength := clamp01(0.68 + (adx.Last(0)-s.minADX)/80 + math.Abs(diGap)/100)
	confidence := clamp01(0.6 + adx.Last(0)/150)

	if diGap > 2 {
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   strength,
			Confidence: confidence,
			Reason:     fmt.Sprintf("rising adx %.1f, +di leads by %.1f", adx.Last(0), diGap),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	if diGap < -2 {
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   strength,
			Confidence: confidence,
			Reason:     fmt.Sprintf("rising adx %.1f, -di leads by %.1f", adx.Last(0), -diGap),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "no dominant direction")
}
