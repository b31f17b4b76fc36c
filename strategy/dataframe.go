// Package strategy holds the machinery around signal generation: the
// rolling dataframe each strategy reads and the ensemble that turns
// individual votes into one aggregated signal.
package strategy

import "github.com/quorumtrade/quorum/core"

// maxCandles bounds the rolling window. Indicator lookbacks are far
// shorter, so trimming never affects signal output.
const maxCandles = 500

// DataframeManager maintains the rolling dataframe for one pair and
// timeframe, fed candle by candle from the data feed
type DataframeManager struct {
	dataframe *core.Dataframe
}

// NewDataframeManager creates a new dataframe manager for a given trading pair
func NewDataframeManager(pair string) *DataframeManager {
	dataframe := &core.Dataframe{
		Pair:     pair,
		Metadata: make(map[string]core.Series[float64]),
	}

	return &DataframeManager{
		dataframe: dataframe,
	}
}

// Dataframe returns the current dataframe
func (dm *DataframeManager) Dataframe() *core.Dataframe {
	return dm.dataframe
}

// OnCandle updates the dataframe with a new candle, replacing the last
// entry when the timestamp matches (partial candle update)
func (dm *DataframeManager) OnCandle(candle core.Candle) {
	df := dm.dataframe

	if len(df.Time) > 0 && candle.Time.Equal(df.Time[len(df.Time)-1]) {
		last := len(df.Time) - 1
		df.Close[last] = candle.Close
		df.Open[last] = candle.Open
		df.High[last] = candle.High
		df.Low[last] = candle.Low
		df.Volume[last] = candle.Volume
		df.Time[last] = candle.Time
		for k, v := range candle.Metadata {
			df.Metadata[k][last] = v
		}
		return
	}

	df.Close = append(df.Close, candle.Close)
	df.Open = append(df.Open, candle.Open)
	df.High = append(df.High, candle.High)
	df.Low = append(df.Low, candle.Low)
	df.Volume = append(df.Volume, candle.Volume)
	df.Time = append(df.Time, candle.Time)
	df.LastUpdate = candle.Time
	for k, v := range candle.Metadata {
		df.Metadata[k] = append(df.Metadata[k], v)
	}

	dm.trim()
}

// HasSufficientData checks if the dataframe covers the warmup period
func (dm *DataframeManager) HasSufficientData(warmupPeriod int) bool {
	return len(dm.dataframe.Close) >= warmupPeriod
}

// IsLateCandle checks if a candle is older than the latest one in the dataframe
func (dm *DataframeManager) IsLateCandle(candle core.Candle) bool {
	return len(dm.dataframe.Time) > 0 && candle.Time.Before(dm.dataframe.Time[len(dm.dataframe.Time)-1])
}

func (dm *DataframeManager) trim() {
	df := dm.dataframe
	if len(df.Time) <= maxCandles {
		return
	}

	cut := len(df.Time) - maxCandles
	df.Close = df.Close[cut:]
	df.Open = df.Open[cut:]
	df.High = df.High[cut:]
	df.Low = df.Low[cut:]
	df.Volume = df.Volume[cut:]
	df.Time = df.Time[cut:]
	for k := range df.Metadata {
		if len(df.Metadata[k]) > maxCandles {
			df.Metadata[k] = df.Metadata[k][cut:]
		}
	}
}
