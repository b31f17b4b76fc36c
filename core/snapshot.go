package core

import "time"

// IndicatorSnapshot carries every indicator value aligned to the latest
// closed candle. It is computed once per candle and shared by strategies,
// filters and risk checks so the same tick never sees two different values
// for the same indicator.
type IndicatorSnapshot struct {
	Pair  string
	Time  time.Time
	Price float64

	EMA9  float64
	EMA21 float64
	EMA55 float64

	MACD       float64
	MACDSignal float64
	MACDHist   float64

	RSI float64

	ADX     float64
	PlusDI  float64
	MinusDI float64

	BBUpper      float64
	BBMiddle     float64
	BBLower      float64
	BandwidthPct float64
	PercentB     float64

	ATR    float64
	ATRPct float64

	K float64
	D float64
	J float64

	// VolumeRatio is current volume over its 20-period average
	VolumeRatio float64

	// PriceChange10 is the relative close-to-close change over 10 candles
	PriceChange10 float64

	// Volatility is the standard deviation of the last 10 close-to-close
	// returns
	Volatility float64
}
