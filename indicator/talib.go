package indicator

import (
	"github.com/markcheno/go-talib"

	"github.com/quorumtrade/quorum/core"
)

// MaType represents moving average type
type MaType = talib.MaType

// Moving average type constants
const (
	TypeSMA = talib.SMA // Simple Moving Average
	TypeEMA = talib.EMA // Exponential Moving Average
	TypeWMA = talib.WMA // Weighted Moving Average
)

// ------------------------------------------
// Overlap Studies (Moving Averages, Bands)
// ------------------------------------------

// BB calculates Bollinger Bands
// Returns upper, middle, and lower bands
func BB(input []float64, period int, deviation float64, maType MaType) (core.Series[float64], core.Series[float64], core.Series[float64]) {
	return talib.BBands(input, period, deviation, deviation, maType)
}

// EMA calculates Exponential Moving Average
func EMA(input []float64, period int) core.Series[float64] {
	return talib.Ema(input, period)
}

// SMA calculates Simple Moving Average
func SMA(input []float64, period int) core.Series[float64] {
	return talib.Sma(input, period)
}

// WMA calculates Weighted Moving Average
func WMA(input []float64, period int) core.Series[float64] {
	return talib.Wma(input, period)
}

// ---------------------------------------
// Momentum Indicators
// ---------------------------------------

// ADX calculates Average Directional Movement Index
func ADX(high []float64, low []float64, close []float64, period int) core.Series[float64] {
	return talib.Adx(high, low, close, period)
}

// MACD calculates Moving Average Convergence/Divergence
// Returns MACD, signal, and histogram
func MACD(input []float64, fastPeriod int, slowPeriod int, signalPeriod int) (core.Series[float64], core.Series[float64], core.Series[float64]) {
	return talib.Macd(input, fastPeriod, slowPeriod, signalPeriod)
}

// MinusDI calculates Minus Directional Indicator
func MinusDI(high []float64, low []float64, close []float64, period int) core.Series[float64] {
	return talib.MinusDI(high, low, close, period)
}

// PlusDI calculates Plus Directional Indicator
func PlusDI(high []float64, low []float64, close []float64, period int) core.Series[float64] {
	return talib.PlusDI(high, low, close, period)
}

// ROCP calculates Rate of Change Percentage: (price-prevPrice)/prevPrice
func ROCP(input []float64, period int) core.Series[float64] {
	return talib.Rocp(input, period)
}

// RSI calculates Relative Strength Index
func RSI(input []float64, period int) core.Series[float64] {
	return talib.Rsi(input, period)
}

// Stoch calculates Slow Stochastic Indicator
// Returns slowK and slowD
func Stoch(high []float64, low []float64, close []float64, fastKPeriod int, slowKPeriod int,
	slowKMAType MaType, slowDPeriod int, slowDMAType MaType) (core.Series[float64], core.Series[float64]) {
	return talib.Stoch(high, low, close, fastKPeriod, slowKPeriod, slowKMAType, slowDPeriod, slowDMAType)
}

// ---------------------------------------
// Volatility Indicators
// ---------------------------------------

// ATR calculates Average True Range
func ATR(high []float64, low []float64, close []float64, period int) core.Series[float64] {
	return talib.Atr(high, low, close, period)
}

// StdDev calculates Standard Deviation over period
func StdDev(input []float64, period int, nbDev float64) core.Series[float64] {
	return talib.StdDev(input, period, nbDev)
}
