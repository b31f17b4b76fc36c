package indicator

import "github.com/quorumtrade/quorum/core"

// KDJ calculates the KDJ stochastic oscillator based on high, low, and
// close prices.
// Parameters:
//   - high: slice of high prices
//   - low: slice of low prices
//   - close: slice of closing prices
//   - period: lookback period for the raw stochastic value
//
// Returns: K, D and J series aligned to the input length. J is derived as
// 3*K - 2*D and may leave the [0,100] range during strong moves.
func KDJ(high, low, close []float64, period int) (core.Series[float64], core.Series[float64], core.Series[float64]) {
	length := len(close)
	if length == 0 {
		return []float64{}, []float64{}, []float64{}
	}

	k, d := Stoch(high, low, close, period, 3, TypeSMA, 3, TypeSMA)

	j := make([]float64, length)
	for i := range j {
		j[i] = 3*k[i] - 2*d[i]
	}

	return k, d, j
}
