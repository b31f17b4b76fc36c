// Package metric provides pure statistics over closed-trade results.
// Values are per-trade profits in quote currency; wins are >= 0.
package metric

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of the values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// WinRate returns the fraction of non-negative results
func WinRate(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	wins := 0
	for _, value := range values {
		if value >= 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(values))
}

// Payoff calculates the ratio of the average win to the average loss.
// With no losses in the sample it returns 10.
func Payoff(values []float64) float64 {
	wins, losses := partition(values)

	if len(losses) == 0 {
		return 10
	}

	avgLoss := stat.Mean(losses, nil)
	if avgLoss == 0 {
		return 10
	}

	avgWin := 0.0
	if len(wins) > 0 {
		avgWin = stat.Mean(wins, nil)
	}
	return math.Abs(avgWin / avgLoss)
}

// ProfitFactor calculates the ratio of total profits to total losses.
// With no losses in the sample it returns 10.
func ProfitFactor(values []float64) float64 {
	var totalWins, totalLosses float64
	for _, value := range values {
		if value >= 0 {
			totalWins += value
		} else {
			totalLosses += value
		}
	}

	if totalLosses == 0 {
		return 10
	}
	return math.Abs(totalWins / totalLosses)
}

// Expectancy returns the mean result weighted by win rate and payoff,
// the long-run edge per trade
func Expectancy(values []float64) float64 {
	wins, losses := partition(values)
	if len(values) == 0 {
		return 0
	}

	winRate := float64(len(wins)) / float64(len(values))
	avgWin, avgLoss := 0.0, 0.0
	if len(wins) > 0 {
		avgWin = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		avgLoss = stat.Mean(losses, nil)
	}
	return winRate*avgWin - (1-winRate)*avgLoss
}

// MaxDrawdown returns the deepest peak-to-trough fall of the cumulative
// equity curve built from the results, as a positive number
func MaxDrawdown(values []float64) float64 {
	var equity, peak, drawdown float64
	for _, value := range values {
		equity += value
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > drawdown {
			drawdown = dd
		}
	}
	return drawdown
}

// partition separates results into wins and absolute-valued losses
func partition(values []float64) (wins []float64, losses []float64) {
	for _, value := range values {
		if value >= 0 {
			wins = append(wins, value)
		} else {
			losses = append(losses, math.Abs(value))
		}
	}
	return wins, losses
}
