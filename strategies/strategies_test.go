package strategies

import (
	"testing"
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/regime"

	"github.com/stretchr/testify/require"
)

// flatView builds a view over n flat candles with the given snapshot
func flatView(n int, snap core.IndicatorSnapshot) *core.MarketView {
	df := &core.Dataframe{Pair: "BTCUSDT", Metadata: make(map[string]core.Series[float64])}
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		df.Open = append(df.Open, 100)
		df.Close = append(df.Close, 100)
		df.High = append(df.High, 101)
		df.Low = append(df.Low, 99)
		df.Volume = append(df.Volume, 1000)
		df.Time = append(df.Time, base.Add(time.Duration(i)*time.Minute))
	}
	return &core.MarketView{Primary: df, Snapshot: snap}
}

func TestAll_CoversRegimeAllowLists(t *testing.T) {
	names := make(map[string]bool)
	for _, s := range All() {
		names[s.Name()] = true
	}
	require.Len(t, names, 10)

	for _, r := range []regime.Regime{regime.Trending, regime.Ranging, regime.Transitioning} {
		for _, allowed := range regime.AllowedStrategies(r) {
			require.Truef(t, names[allowed], "regime %s allows unknown strategy %s", r, allowed)
		}
	}
}

func TestAll_HoldOnInsufficientHistory(t *testing.T) {
	view := flatView(3, core.IndicatorSnapshot{})
	for _, s := range All() {
		signal := s.Evaluate(view)
		require.Equalf(t, core.SignalHold, signal.Side, "strategy %s must hold without history", s.Name())
	}
}

func TestBollingerTrend_Evaluate(t *testing.T) {
	strategy := NewBollingerTrend(0, 0)

	breakout := core.IndicatorSnapshot{
		Price: 105, EMA21: 100,
		PercentB: 1.08, BandwidthPct: 3.2, VolumeRatio: 1.8,
	}
	signal := strategy.Evaluate(flatView(50, breakout))
	require.Equal(t, core.SignalLong, signal.Side)
	require.Greater(t, signal.Strength, 0.75)

	inside := breakout
	inside.PercentB = 0.6
	signal = strategy.Evaluate(flatView(50, inside))
	require.Equal(t, core.SignalHold, signal.Side)

	narrow := breakout
	narrow.BandwidthPct = 1.0
	signal = strategy.Evaluate(flatView(50, narrow))
	require.Equal(t, core.SignalHold, signal.Side)
}

func TestBollingerBreakthrough_Evaluate(t *testing.T) {
	strategy := NewBollingerBreakthrough(0, 0)

	lowerTouch := core.IndicatorSnapshot{
		Price: 95, PercentB: 0.01, BandwidthPct: 2.1, RSI: 28,
	}
	signal := strategy.Evaluate(flatView(50, lowerTouch))
	require.Equal(t, core.SignalLong, signal.Side)

	upperTouch := core.IndicatorSnapshot{
		Price: 105, PercentB: 0.98, BandwidthPct: 2.1, RSI: 72,
	}
	signal = strategy.Evaluate(flatView(50, upperTouch))
	require.Equal(t, core.SignalShort, signal.Side)

	// expanding bands disable the fade even at a band touch
	expanding := lowerTouch
	expanding.BandwidthPct = 5.5
	signal = strategy.Evaluate(flatView(50, expanding))
	require.Equal(t, core.SignalHold, signal.Side)
}

func TestCompositeScore_Evaluate(t *testing.T) {
	strategy := NewCompositeScore(0)

	bullish := core.IndicatorSnapshot{
		Price: 102, EMA9: 101, EMA21: 100, EMA55: 99,
		MACD: 0.5, MACDSignal: 0.3, MACDHist: 0.2,
		RSI: 62, PercentB: 0.8, K: 70, D: 55, VolumeRatio: 1.4,
	}
	signal := strategy.Evaluate(flatView(80, bullish))
	require.Equal(t, core.SignalLong, signal.Side)

	bearish := core.IndicatorSnapshot{
		Price: 98, EMA9: 99, EMA21: 100, EMA55: 101,
		MACD: -0.5, MACDSignal: -0.3, MACDHist: -0.2,
		RSI: 32, PercentB: 0.1, K: 30, D: 45, VolumeRatio: 0.8,
	}
	signal = strategy.Evaluate(flatView(80, bearish))
	require.Equal(t, core.SignalShort, signal.Side)
}

func TestMultiTimeframe_Evaluate(t *testing.T) {
	strategy := NewMultiTimeframe()

	primary := core.IndicatorSnapshot{
		Price: 102, EMA9: 101, EMA21: 100, EMA55: 99, MACDHist: 0.2,
	}

	// no higher timeframe wired in, must abstain
	signal := strategy.Evaluate(flatView(80, primary))
	require.Equal(t, core.SignalHold, signal.Side)

	view := flatView(80, primary)
	view.Higher = view.Primary
	view.HigherSnapshot = &core.IndicatorSnapshot{EMA9: 101, EMA21: 100, MACDHist: 0.1}
	signal = strategy.Evaluate(view)
	require.Equal(t, core.SignalLong, signal.Side)

	// higher timeframe pointing down breaks the alignment
	view.HigherSnapshot = &core.IndicatorSnapshot{EMA9: 99, EMA21: 100, MACDHist: -0.1}
	signal = strategy.Evaluate(view)
	require.Equal(t, core.SignalHold, signal.Side)
}

func TestVolumeBreakout_Evaluate(t *testing.T) {
	strategy := NewVolumeBreakout(0, 0)

	view := flatView(40, core.IndicatorSnapshot{ATR: 1, VolumeRatio: 2.6})
	df := view.Primary
	last := df.Len() - 1
	df.Open[last] = 100.5
	df.Close[last] = 103
	df.High[last] = 103.2

	signal := strategy.Evaluate(view)
	require.Equal(t, core.SignalLong, signal.Side)
	require.Greater(t, signal.Strength, 0.7)

	// same candle without the volume surge is just noise
	view.Snapshot.VolumeRatio = 1.1
	signal = strategy.Evaluate(view)
	require.Equal(t, core.SignalHold, signal.Side)
}

func TestADXTrend_HoldsOnQuietMarket(t *testing.T) {
	strategy := NewADXTrend(0)

	// flat candles produce a collapsing ADX, never a rising-trend vote
	signal := strategy.Evaluate(flatView(60, core.IndicatorSnapshot{PlusDI: 20, MinusDI: 20}))
	require.Equal(t, core.SignalHold, signal.Side)
}
