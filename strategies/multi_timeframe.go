package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
)

// MultiTimeframe only votes when the primary timeframe and a higher one
// agree on direction. Without a higher timeframe it abstains.
type MultiTimeframe struct{}

// NewMultiTimeframe creates a new instance
func NewMultiTimeframe() *MultiTimeframe {
	return &MultiTimeframe{}
}

// Name returns the strategy identifier
func (s *MultiTimeframe) Name() string {
	return "multi_timeframe"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *MultiTimeframe) WarmupPeriod() int {
	return 60
}

// Evaluate scores directional alignment between the two timeframes
func (s *MultiTimeframe) Evaluate(view *core.MarketView) core.Signal {
	if view.Primary.Len() < s.WarmupPeriod() {
		return core.Hold(s.Name(), "insufficient history")
	}
	if !view.HasHigher() {
		return core.Hold(s.Name(), "higher timeframe unavailable")
	}

	snap := view.Snapshot
	higher := *view.HigherSnapshot
	if math.IsNaN(snap.EMA55) || math.IsNaN(higher.EMA21) {
		return core.Hold(s.Name(), "indicators warming up")
	}

	bullish := 0
	bearish := 0

	score := func(cond bool, up *int, down *int) {
		if cond {
			*up++
		} else {
			*down++
		}
	}

	// Primary timeframe alignment
	score(snap.EMA9 > snap.EMA21 && snap.EMA21 > snap.EMA55, &bullish, &bearish)
	score(snap.MACDHist > 0, &bullish, &bearish)
	score(snap.Price > snap.EMA21, &bullish, &bearish)

	// Higher timeframe confirmation
	score(higher.EMA9 > higher.EMA21, &bullish, &bearish)
	score(higher.MACDHist > 0, &bullish, &bearish)

	const total = 5.0

	if bullish >= 4 {
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.62 + float64(bullish)/total*0.3),
			Confidence: clamp01(0.5 + float64(bullish)/total*0.4),
			Reason:     fmt.Sprintf("%d/5 checks bullish across timeframes", bullish),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	if bearish >= 4 {
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.62 + float64(bearish)/total*0.3),
			Confidence: clamp01(0.5 + float64(bearish)/total*0.4),
			Reason:     fmt.Sprintf("%d/5 checks bearish across timeframes", bearish),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "timeframes disagree")
}
