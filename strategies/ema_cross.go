package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/indicator"
)

const (
	emaCrossFast  = 9
	emaCrossSlow  = 21
	emaCrossTrend = 55
)

// EMACross votes on the 9/21 EMA cross, taking entries only in the
// direction of the 55 EMA trend filter
type EMACross struct{}

// NewEMACross creates a new instance
func NewEMACross() *EMACross {
	return &EMACross{}
}

// Name returns the strategy identifier
func (s *EMACross) Name() string {
	return "ema_cross"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *EMACross) WarmupPeriod() int {
	return emaCrossTrend + 5
}

// Evaluate votes when the fast EMA crosses the mid EMA on the right side
// of the trend EMA
func (s *EMACross) Evaluate(view *core.MarketView) core.Signal {
	df := view.Primary
	if df.Len() < s.WarmupPeriod() {
		return core.Hold(s.Name(), "insufficient history")
	}

	fast := indicator.EMA(df.Close, emaCrossFast)
	mid := indicator.EMA(df.Close, emaCrossSlow)

	if math.IsNaN(fast.Last(0)) || math.IsNaN(mid.Last(0)) {
		return core.Hold(s.Name(), "ema warming up")
	}

	snap := view.Snapshot
	price := df.Close.Last(0)

	// Separation of the two averages, relative to price, measures how
	// decisive the cross is
	gapPct := math.Abs(fast.Last(0)-mid.Last(0)) / price * 100

	// Long conditions:
	// 1. Fast EMA crossed above the mid EMA on this candle
	// 2. Price on the bullish side of the trend EMA
	if fast.Crossover(mid) && price > snap.EMA55 {
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.74 + gapPct*0.3 + snap.ADX/200),
			Confidence: clamp01(0.6 + snap.ADX/150),
			Reason:     fmt.Sprintf("ema%d crossed above ema%d", emaCrossFast, emaCrossSlow),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	// Short conditions mirror the long side
	if fast.Crossunder(mid) && price < snap.EMA55 {
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.74 + gapPct*0.3 + snap.ADX/200),
			Confidence: clamp01(0.6 + snap.ADX/150),
			Reason:     fmt.Sprintf("ema%d crossed below ema%d", emaCrossFast, emaCrossSlow),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "no cross")
}
