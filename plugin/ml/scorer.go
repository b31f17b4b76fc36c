// Package ml provides the built-in trade-quality scorer. It grades a
// prospective entry in [0,1] from the fixed feature vector by combining
// weighted heuristic components, the same shape a trained model would
// plug into. The model is loaded on first use and unloaded after idle.
package ml

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/quorumtrade/quorum/core"
)

// Weights control how much each component contributes to the score
type Weights struct {
	Conviction float64 // signal strength and ensemble agreement
	Trend      float64 // directional-movement strength
	Momentum   float64 // recent move size relative to noise
	Volume     float64 // participation vs the recent average
	Stability  float64 // penalty for disorderly price action
}

// DefaultWeights returns the stock component weighting
func DefaultWeights() Weights {
	return Weights{
		Conviction: 0.30,
		Trend:      0.25,
		Momentum:   0.15,
		Volume:     0.15,
		Stability:  0.15,
	}
}

// Scorer implements core.Scorer with a lazily loaded heuristic model
type Scorer struct {
	weights   Weights
	idleAfter time.Duration
	log       core.Logger
	clock     func() time.Time

	mu       sync.Mutex
	model    *model
	lastUsed time.Time
}

type model struct {
	weights  Weights
	loadedAt time.Time
}

// NewScorer creates a scorer that loads its model on first Score call and
// drops it again after idleAfter without use. Zero weights select
// DefaultWeights.
func NewScorer(weights Weights, idleAfter time.Duration, log core.Logger) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if idleAfter <= 0 {
		idleAfter = 15 * time.Minute
	}
	if log == nil {
		log = core.NewNopLogger()
	}
	return &Scorer{
		weights:   weights,
		idleAfter: idleAfter,
		log:       log,
		clock:     time.Now,
	}
}

// Score grades the features in [0,1]
func (s *Scorer) Score(ctx context.Context, features core.Features) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := s.clock()
	m := s.acquire(now)

	score := m.weights.Conviction*convictionComponent(features) +
		m.weights.Trend*trendComponent(features) +
		m.weights.Momentum*momentumComponent(features) +
		m.weights.Volume*volumeComponent(features) +
		m.weights.Stability*stabilityComponent(features)

	return clamp01(score), nil
}

// Loaded reports whether the model is currently resident
func (s *Scorer) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model != nil
}

// Unload drops the model immediately; the next Score call reloads it
func (s *Scorer) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		s.model = nil
		s.log.Debug("quality model unloaded")
	}
}

// acquire returns the resident model, evicting one idle past the limit and
// loading a fresh one when none is resident
func (s *Scorer) acquire(now time.Time) *model {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model != nil && now.Sub(s.lastUsed) > s.idleAfter {
		s.log.WithField("idle", now.Sub(s.lastUsed).String()).
			Debug("quality model idle, unloading")
		s.model = nil
	}

	if s.model == nil {
		s.model = &model{weights: s.weights, loadedAt: now}
		s.log.Debug("quality model loaded")
	}

	s.lastUsed = now
	return s.model
}

// convictionComponent blends signal strength and ensemble agreement
func convictionComponent(f core.Features) float64 {
	return clamp01(0.5*nanSafe(f.SignalStrength) + 0.5*nanSafe(f.Agreement))
}

// trendComponent maps ADX onto [0,1]; 15 and below reads as no trend,
// 50 and above as fully established
func trendComponent(f core.Features) float64 {
	if math.IsNaN(f.ADX) {
		return 0.5
	}
	return clamp01((f.ADX - 15) / 35)
}

// momentumComponent compares the 10-candle move against the drift random
// noise would produce at the realized volatility
func momentumComponent(f core.Features) float64 {
	if math.IsNaN(f.PriceChange10) || math.IsNaN(f.Volatility10) || f.Volatility10 <= 0 {
		return 0.5
	}
	noise := f.Volatility10 * math.Sqrt(10)
	return clamp01(math.Abs(f.PriceChange10) / noise)
}

// volumeComponent rewards participation above the recent average
func volumeComponent(f core.Features) float64 {
	if math.IsNaN(f.VolumeRatio) {
		return 0.5
	}
	return clamp01((f.VolumeRatio - 0.8) / 1.2)
}

// stabilityComponent penalizes wide ranges and RSI extremes, the
// conditions where fills and stops both degrade
func stabilityComponent(f core.Features) float64 {
	atrPenalty := 0.0
	if !math.IsNaN(f.ATRPct) {
		atrPenalty = clamp01(f.ATRPct / 5)
	}

	rsiPenalty := 0.0
	if !math.IsNaN(f.RSI) {
		if f.RSI > 80 {
			rsiPenalty = (f.RSI - 80) / 20
		} else if f.RSI < 20 {
			rsiPenalty = (20 - f.RSI) / 20
		}
	}

	return clamp01(1 - atrPenalty - 0.5*rsiPenalty)
}

func nanSafe(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
