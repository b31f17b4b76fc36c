package strategy

import (
	"testing"
	"time"

	"github.com/quorumtrade/quorum/core"

	"github.com/stretchr/testify/require"
)

func candleAt(t time.Time, close float64) core.Candle {
	return core.Candle{
		Pair:     "BTCUSDT",
		Time:     t,
		Open:     close - 1,
		Close:    close,
		High:     close + 1,
		Low:      close - 2,
		Volume:   100,
		Complete: true,
	}
}

func TestDataframeManager_OnCandle(t *testing.T) {
	manager := NewDataframeManager("BTCUSDT")
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		manager.OnCandle(candleAt(base.Add(time.Duration(i)*time.Minute), 100+float64(i)))
	}

	df := manager.Dataframe()
	require.Equal(t, 3, df.Len())
	require.Equal(t, 102.0, df.Close.Last(0))

	// same timestamp replaces the last row instead of appending
	manager.OnCandle(candleAt(base.Add(2*time.Minute), 110))
	df = manager.Dataframe()
	require.Equal(t, 3, df.Len())
	require.Equal(t, 110.0, df.Close.Last(0))
}

func TestDataframeManager_Bounded(t *testing.T) {
	manager := NewDataframeManager("BTCUSDT")
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < maxCandles+50; i++ {
		manager.OnCandle(candleAt(base.Add(time.Duration(i)*time.Minute), float64(i)))
	}

	df := manager.Dataframe()
	require.Equal(t, maxCandles, df.Len())
	require.Len(t, df.Time, maxCandles)
	require.Equal(t, float64(maxCandles+49), df.Close.Last(0))
	require.Equal(t, float64(50), df.Close[0])
}

func TestDataframeManager_IsLateCandle(t *testing.T) {
	manager := NewDataframeManager("BTCUSDT")
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	manager.OnCandle(candleAt(base, 100))
	require.False(t, manager.IsLateCandle(candleAt(base, 100)))
	require.True(t, manager.IsLateCandle(candleAt(base.Add(-time.Minute), 99)))
}
