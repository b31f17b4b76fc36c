package indicator

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"

	"gonum.org/v1/gonum/stat"
)

// MinHistory is the number of closed candles Build requires. The longest
// lookback is the EMA55 plus a settling margin.
const MinHistory = 60

// Periods shared by every snapshot
const (
	fastEMAPeriod   = 9
	midEMAPeriod    = 21
	slowEMAPeriod   = 55
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	macdSignal      = 9
	rsiPeriod       = 14
	adxPeriod       = 14
	bbPeriod        = 20
	bbDeviation     = 2.0
	atrPeriod       = 14
	kdjPeriod       = 9
	volumeSMAPeriod = 20
	changeWindow    = 10
)

// SafeDiv divides nom by div, propagating NaN when the divisor is zero so
// callers skip the value instead of acting on a misleading one
func SafeDiv(nom, div float64) float64 {
	if div == 0 {
		return math.NaN()
	}
	return nom / div
}

// Build computes every indicator aligned to the latest closed candle of
// the dataframe. The same snapshot is shared by strategies, filters and
// risk checks within one tick.
func Build(df *core.Dataframe) (core.IndicatorSnapshot, error) {
	size := df.Len()
	if size < MinHistory {
		return core.IndicatorSnapshot{},
			fmt.Errorf("insufficient history: have %d candles, need %d", size, MinHistory)
	}

	last := size - 1
	price := df.Close.Last(0)

	ema9 := EMA(df.Close, fastEMAPeriod)
	ema21 := EMA(df.Close, midEMAPeriod)
	ema55 := EMA(df.Close, slowEMAPeriod)

	macd, macdSig, macdHist := MACD(df.Close, macdFastPeriod, macdSlowPeriod, macdSignal)
	rsi := RSI(df.Close, rsiPeriod)

	adx := ADX(df.High, df.Low, df.Close, adxPeriod)
	plusDI := PlusDI(df.High, df.Low, df.Close, adxPeriod)
	minusDI := MinusDI(df.High, df.Low, df.Close, adxPeriod)

	upper, middle, lower := BB(df.Close, bbPeriod, bbDeviation, TypeSMA)
	atr := ATR(df.High, df.Low, df.Close, atrPeriod)
	k, d, j := KDJ(df.High, df.Low, df.Close, kdjPeriod)

	volumeSMA := SMA(df.Volume, volumeSMAPeriod)

	snapshot := core.IndicatorSnapshot{
		Pair:  df.Pair,
		Time:  df.Time[last],
		Price: price,

		EMA9:  ema9[last],
		EMA21: ema21[last],
		EMA55: ema55[last],

		MACD:       macd[last],
		MACDSignal: macdSig[last],
		MACDHist:   macdHist[last],

		RSI: rsi[last],

		ADX:     adx[last],
		PlusDI:  plusDI[last],
		MinusDI: minusDI[last],

		BBUpper:      upper[last],
		BBMiddle:     middle[last],
		BBLower:      lower[last],
		BandwidthPct: SafeDiv(upper[last]-lower[last], middle[last]) * 100,
		PercentB:     SafeDiv(price-lower[last], upper[last]-lower[last]),

		ATR:    atr[last],
		ATRPct: SafeDiv(atr[last], price) * 100,

		K: k[last],
		D: d[last],
		J: j[last],

		VolumeRatio:   SafeDiv(df.Volume.Last(0), volumeSMA[last]),
		PriceChange10: SafeDiv(price-df.Close.Last(changeWindow), df.Close.Last(changeWindow)),
		Volatility:    realizedVolatility(df.Close, changeWindow),
	}

	return snapshot, nil
}

// realizedVolatility is the standard deviation of the last 'window'
// close-to-close returns
func realizedVolatility(close core.Series[float64], window int) float64 {
	if close.Length() < window+1 {
		return math.NaN()
	}

	returns := make([]float64, window)
	for i := 0; i < window; i++ {
		prev := close.Last(window - i)
		returns[i] = SafeDiv(close.Last(window-i-1)-prev, prev)
	}

	return stat.StdDev(returns, nil)
}
