package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/indicator"
)

// KDJCross trades the stochastic K/D cross at the extremes of the range,
// with the J line flagging how stretched the move already is
type KDJCross struct {
	oversold   float64
	overbought float64
}

// NewKDJCross creates a new instance with default parameters
func NewKDJCross(oversold, overbought float64) *KDJCross {
	strategy := &KDJCross{
		oversold:   25,
		overbought: 75,
	}

	if oversold > 0 {
		strategy.oversold = oversold
	}
	if overbought > 0 {
		strategy.overbought = overbought
	}

	return strategy
}

// Name returns the strategy identifier
func (s *KDJCross) Name() string {
	return "kdj_cross"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *KDJCross) WarmupPeriod() int {
	return 20
}

// Evaluate votes when K crosses D inside an extreme zone
func (s *KDJCross) Evaluate(view *core.MarketView) core.Signal {
	df := view.Primary
	if df.Len() < s.WarmupPeriod() {
		return core.Hold(s.Name(), "insufficient history")
	}

	k, d, j := indicator.KDJ(df.High, df.Low, df.Close, 9)
	if math.IsNaN(k.Last(0)) || math.IsNaN(d.Last(0)) {
		return core.Hold(s.Name(), "kdj warming up")
	}

	snap := view.Snapshot

	// Long conditions:
	// 1. K crossed above D
	// 2. The cross happened in the oversold zone
	if k.Crossover(d) && k.Last(0) < s.oversold+10 {
		bonus := 0.0
		if j.Last(0) < 0 {
			// J below zero marks a deeply stretched market
			bonus = 0.08
		}
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.70 + (s.oversold-k.Last(0))/100 + bonus),
			Confidence: clamp01(0.55 + (50-k.Last(0))/150),
			Reason:     fmt.Sprintf("k crossed above d, k=%.1f j=%.1f", k.Last(0), j.Last(0)),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	// Short conditions mirror the long side in the overbought zone
	if k.Crossunder(d) && k.Last(0) > s.overbought-10 {
		bonus := 0.0
		if j.Last(0) > 100 {
			bonus = 0.08
		}
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.70 + (k.Last(0)-s.overbought)/100 + bonus),
			Confidence: clamp01(0.55 + (k.Last(0)-50)/150),
			Reason:     fmt.Sprintf("k crossed below d, k=%.1f j=%.1f", k.Last(0), j.Last(0)),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "no cross in extreme zone")
}
