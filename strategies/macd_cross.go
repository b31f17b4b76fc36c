package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/indicator"
)

// MACDCross votes on MACD line / signal line crossings. Crosses that happen
// far from the zero line carry more weight because the move has more room
// to revert to it.
type MACDCross struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACDCross creates a new instance with default parameters
func NewMACDCross(fastPeriod, slowPeriod, signalPeriod int) *MACDCross {
	strategy := &MACDCross{
		fastPeriod:   12,
		slowPeriod:   26,
		signalPeriod: 9,
	}

	if fastPeriod > 0 {
		strategy.fastPeriod = fastPeriod
	}
	if slowPeriod > 0 {
		strategy.slowPeriod = slowPeriod
	}
	if signalPeriod > 0 {
		strategy.signalPeriod = signalPeriod
	}

	return strategy
}

// Name returns the strategy identifier
func (s *MACDCross) Name() string {
	return "macd_cross"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *MACDCross) WarmupPeriod() int {
	return s.slowPeriod + s.signalPeriod + 5
}

// Evaluate votes on the most recent MACD/signal cross
func (s *MACDCross) Evaluate(view *core.MarketView) core.Signal {
	df := view.Primary
	if df.Len() < s.WarmupPeriod() {
		return core.Hold(s.Name(), "insufficient history")
	}

	macd, signalLine, hist := indicator.MACD(df.Close, s.fastPeriod, s.slowPeriod, s.signalPeriod)

	last := hist.Last(0)
	if math.IsNaN(last) || math.IsNaN(macd.Last(0)) {
		return core.Hold(s.Name(), "macd warming up")
	}

	snap := view.Snapshot

	// Histogram magnitude is price-scaled, normalize it by ATR so strength
	// is comparable across pairs
	histNorm := 0.0
	if snap.ATR > 0 {
		histNorm = math.Abs(last) / snap.ATR
	}

	if macd.Crossover(signalLine) {
		// Crossing up below the zero line catches the turn early
		bonus := 0.0
		if macd.Last(0) < 0 {
			bonus = 0.08
		}
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(0.72 + bonus + math.Min(histNorm, 0.15)),
			Confidence: clamp01(0.55 + snap.ADX/100),
			Reason:     fmt.Sprintf("macd crossed above signal, hist=%.4f", last),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	if macd.Crossunder(signalLine) {
		bonus := 0.0
		if macd.Last(0) > 0 {
			bonus = 0.08
		}
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(0.72 + bonus + math.Min(histNorm, 0.15)),
			Confidence: clamp01(0.55 + snap.ADX/100),
			Reason:     fmt.Sprintf("macd crossed below signal, hist=%.4f", last),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), "no cross")
}
