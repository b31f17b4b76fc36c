package strategies

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
)

// CompositeScore blends six indicator families into one bull/bear score.
// It is the generalist of the ensemble and votes in every regime.
type CompositeScore struct {
	entryScore float64
}

// NewCompositeScore creates a new instance with default parameters
func NewCompositeScore(entryScore float64) *CompositeScore {
	strategy := &CompositeScore{entryScore: 0.65}
	if entryScore > 0 {
		strategy.entryScore = entryScore
	}
	return strategy
}

// Name returns the strategy identifier
func (s *CompositeScore) Name() string {
	return "composite_score"
}

// WarmupPeriod returns the number of candles needed before the strategy is ready
func (s *CompositeScore) WarmupPeriod() int {
	return 60
}

// Evaluate folds the snapshot into a single score in [0,1], where 1 is
// maximally bullish, and votes at the configured extremes
func (s *CompositeScore) Evaluate(view *core.MarketView) core.Signal {
	snap := view.Snapshot
	if view.Primary.Len() < s.WarmupPeriod() || math.IsNaN(snap.RSI) || math.IsNaN(snap.PercentB) {
		return core.Hold(s.Name(), "insufficient history")
	}

	score := 0.0

	// Trend structure, weight 0.20
	switch {
	case snap.EMA9 > snap.EMA21 && snap.EMA21 > snap.EMA55:
		score += 0.20
	case snap.EMA9 > snap.EMA21:
		score += 0.12
	case snap.EMA9 < snap.EMA21 && snap.EMA21 < snap.EMA55:
		score += 0.0
	default:
		score += 0.08
	}

	// Momentum, weight 0.20
	if snap.MACDHist > 0 {
		score += 0.20
	} else if snap.MACD > snap.MACDSignal {
		score += 0.10
	}

	// RSI zone, weight 0.15; the middle of the range is neutral
	score += 0.15 * clamp01((snap.RSI-30)/40)

	// Position in the bands, weight 0.15
	score += 0.15 * clamp01(snap.PercentB)

	// Stochastic, weight 0.15
	if snap.K > snap.D {
		score += 0.15 * clamp01((snap.K-snap.D)/20+0.5)
	} else {
		score += 0.15 * (1 - clamp01((snap.D-snap.K)/20+0.5))
	}

	// Participation, weight 0.15
	if snap.VolumeRatio >= 1 {
		if snap.Price > snap.EMA9 {
			score += 0.15
		}
	} else {
		score += 0.07
	}

	if score >= s.entryScore {
		return core.Signal{
			Side:       core.SignalLong,
			Strength:   clamp01(score + 0.1),
			Confidence: clamp01((score - 0.5) * 2),
			Reason:     fmt.Sprintf("composite score %.2f", score),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	if score <= 1-s.entryScore {
		return core.Signal{
			Side:       core.SignalShort,
			Strength:   clamp01(1 - score + 0.1),
			Confidence: clamp01((0.5 - score) * 2),
			Reason:     fmt.Sprintf("composite score %.2f", score),
			Snapshot:   snap,
			Time:       snap.Time,
		}
	}

	return core.Hold(s.Name(), fmt.Sprintf("neutral score %.2f", score))
}
