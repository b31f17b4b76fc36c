// Package regime classifies market state from trend strength and
// volatility expansion. The bot consults the classification to pick which
// strategies are allowed to vote on each candle.
package regime

import (
	"math"

	"github.com/quorumtrade/quorum/core"
)

// Regime is a discrete market-state classification
type Regime string

const (
	Ranging       Regime = "ranging"
	Trending      Regime = "trending"
	Transitioning Regime = "transitioning"
)

// Code returns a numeric encoding used in scorer feature vectors
func (r Regime) Code() float64 {
	switch r {
	case Ranging:
		return 0
	case Trending:
		return 2
	default:
		return 1
	}
}

// Detection thresholds, ADX in index points and bandwidth in percent
const (
	trendExitADX = 27.0
	trendExitBB  = 2.5

	strongTrendADX = 35.0
	strongTrendBB  = 2.0

	trendADX = 30.0
	trendBB  = 3.0

	rangeADX = 20.0
	rangeBB  = 2.0

	adxSaturation = 50.0
	bbSaturation  = 5.0
)

// Classification is the detector output for one candle
type Classification struct {
	Regime     Regime
	Confidence float64
	Reason     string
}

// Detector classifies the market regime from ADX and Bollinger bandwidth.
// It keeps the previous classification for hysteresis, so one instance
// must only be used from the bot loop.
type Detector struct {
	log  core.Logger
	prev Regime
}

func NewDetector(log core.Logger) *Detector {
	return &Detector{log: log, prev: Transitioning}
}

// Classify maps the snapshot to a regime. The rule order matters: the
// hysteresis check keeps an established trend alive below the entry
// thresholds, and the strong-trend override runs before the standard rule
// so a high-ADX market with moderate bandwidth is never read as ranging.
func (d *Detector) Classify(snapshot core.IndicatorSnapshot) Classification {
	adx := snapshot.ADX
	bandwidth := snapshot.BandwidthPct

	if math.IsNaN(adx) || math.IsNaN(bandwidth) {
		return Classification{Regime: d.prev, Confidence: 0, Reason: "indicators unavailable"}
	}

	var result Classification

	switch {
	case d.prev == Trending && adx >= trendExitADX && bandwidth >= trendExitBB:
		result = Classification{
			Regime:     Trending,
			Confidence: trendConfidence(adx, bandwidth),
			Reason:     "trend hysteresis",
		}

	case adx >= strongTrendADX && bandwidth > strongTrendBB:
		result = Classification{
			Regime:     Trending,
			Confidence: trendConfidence(adx, bandwidth),
			Reason:     "strong trend override",
		}

	case adx >= trendADX && bandwidth > trendBB:
		result = Classification{
			Regime:     Trending,
			Confidence: trendConfidence(adx, bandwidth),
			Reason:     "trending",
		}

	case adx < rangeADX && bandwidth < rangeBB:
		result = Classification{
			Regime:     Ranging,
			Confidence: rangeConfidence(adx, bandwidth),
			Reason:     "ranging",
		}

	default:
		result = Classification{
			Regime:     Transitioning,
			Confidence: 0.5,
			Reason:     "between regimes",
		}
	}

	if result.Regime != d.prev && d.log != nil {
		d.log.WithFields(map[string]any{
			"from":       d.prev,
			"to":         result.Regime,
			"adx":        adx,
			"bandwidth":  bandwidth,
			"confidence": result.Confidence,
		}).Info("market regime changed")
	}
	d.prev = result.Regime

	return result
}

// Previous returns the last classified regime
func (d *Detector) Previous() Regime {
	return d.prev
}

// AllowedStrategies maps each regime to the strategy names permitted to
// vote while it holds
func AllowedStrategies(r Regime) []string {
	switch r {
	case Trending:
		return []string{
			"bollinger_trend",
			"macd_cross",
			"ema_cross",
			"adx_trend",
			"volume_breakout",
			"multi_timeframe",
			"composite_score",
		}
	case Ranging:
		return []string{
			"bollinger_breakthrough",
			"rsi_divergence",
			"kdj_cross",
			"composite_score",
		}
	default:
		return []string{
			"macd_cross",
			"multi_timeframe",
			"composite_score",
		}
	}
}

// trendConfidence blends trend strength and volatility expansion, each
// scored linearly from its lower threshold to saturation
func trendConfidence(adx, bandwidth float64) float64 {
	adxScore := clamp01((adx - trendExitADX) / (adxSaturation - trendExitADX))
	bbScore := clamp01((bandwidth - strongTrendBB) / (bbSaturation - strongTrendBB))
	return 0.7*adxScore + 0.3*bbScore
}

func rangeConfidence(adx, bandwidth float64) float64 {
	adxScore := clamp01((rangeADX - adx) / rangeADX)
	bbScore := clamp01((rangeBB - bandwidth) / rangeBB)
	return 0.7*adxScore + 0.3*bbScore
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
