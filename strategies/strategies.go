// Package strategies ships the built-in voting strategies. Each one is a
// pure signal generator over a market view; position management, sizing and
// order placement live elsewhere.
package strategies

import "github.com/quorumtrade/quorum/core"

// All returns the default ensemble set with stock parameters
func All() []core.Strategy {
	return []core.Strategy{
		NewBollingerTrend(0, 0),
		NewBollingerBreakthrough(0, 0),
		NewMACDCross(0, 0, 0),
		NewEMACross(),
		NewRSIDivergence(0, 0),
		NewKDJCross(0, 0),
		NewADXTrend(0),
		NewVolumeBreakout(0, 0),
		NewMultiTimeframe(),
		NewCompositeScore(0),
	}
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
