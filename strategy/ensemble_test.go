package strategy

import (
	"testing"
	"time"

	"github.com/quorumtrade/quorum/core"

	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name   string
	signal core.Signal
}

func (s stubStrategy) Name() string         { return s.name }
func (s stubStrategy) WarmupPeriod() int    { return 10 }
func (s stubStrategy) Evaluate(_ *core.MarketView) core.Signal {
	return s.signal
}

func vote(name string, side core.SignalSide, strength float64) core.Strategy {
	return stubStrategy{name: name, signal: core.Signal{
		Side:       side,
		Strength:   strength,
		Confidence: 0.9,
	}}
}

func testEnsemble(strategies ...core.Strategy) *Ensemble {
	filters := core.DefaultConfig().Filters
	return NewEnsemble(core.NewNopLogger(), filters, strategies...)
}

func TestEnsemble_AggregateMajority(t *testing.T) {
	ensemble := testEnsemble(
		vote("a", core.SignalLong, 0.9),
		vote("b", core.SignalLong, 0.8),
		vote("c", core.SignalHold, 0),
	)

	signals := ensemble.Evaluate(&core.MarketView{}, nil)
	aggregate := ensemble.Aggregate(signals, core.IndicatorSnapshot{}, time.Now())

	require.Equal(t, core.SignalLong, aggregate.Side)
	require.InDelta(t, 0.85, aggregate.Strength, 1e-9)
	require.InDelta(t, 2.0/3.0, aggregate.Agreement, 1e-9)
	require.ElementsMatch(t, []string{"a", "b"}, aggregate.Contributors)
}

func TestEnsemble_AggregateTieIsHold(t *testing.T) {
	ensemble := testEnsemble(
		vote("a", core.SignalLong, 0.9),
		vote("b", core.SignalShort, 0.9),
	)

	signals := ensemble.Evaluate(&core.MarketView{}, nil)
	aggregate := ensemble.Aggregate(signals, core.IndicatorSnapshot{}, time.Now())
	require.Equal(t, core.SignalHold, aggregate.Side)
}

func TestEnsemble_AggregateNoSignals(t *testing.T) {
	ensemble := testEnsemble()
	aggregate := ensemble.Aggregate(nil, core.IndicatorSnapshot{}, time.Now())
	require.Equal(t, core.SignalHold, aggregate.Side)
	require.Zero(t, aggregate.Agreement)
}

func TestEnsemble_AggregateBelowThresholds(t *testing.T) {
	// longs need strength >= 0.80 by default
	ensemble := testEnsemble(
		vote("a", core.SignalLong, 0.70),
		vote("b", core.SignalLong, 0.72),
	)

	signals := ensemble.Evaluate(&core.MarketView{}, nil)
	aggregate := ensemble.Aggregate(signals, core.IndicatorSnapshot{}, time.Now())
	require.Equal(t, core.SignalHold, aggregate.Side)
	require.Empty(t, aggregate.Contributors)
}

func TestEnsemble_AggregateShortThresholdLowerThanLong(t *testing.T) {
	// strength 0.75 fails the long floor (0.80) but clears the short one (0.70)
	ensemble := testEnsemble(
		vote("a", core.SignalShort, 0.75),
		vote("b", core.SignalShort, 0.75),
	)

	signals := ensemble.Evaluate(&core.MarketView{}, nil)
	aggregate := ensemble.Aggregate(signals, core.IndicatorSnapshot{}, time.Now())
	require.Equal(t, core.SignalShort, aggregate.Side)
}

func TestEnsemble_AggregateExitSkipsThresholds(t *testing.T) {
	ensemble := testEnsemble(
		vote("a", core.SignalCloseLong, 0.10),
		vote("b", core.SignalCloseLong, 0.20),
	)

	signals := ensemble.Evaluate(&core.MarketView{}, nil)
	aggregate := ensemble.Aggregate(signals, core.IndicatorSnapshot{}, time.Now())
	require.Equal(t, core.SignalCloseLong, aggregate.Side)
}

func TestEnsemble_EvaluateAllowedSubset(t *testing.T) {
	ensemble := testEnsemble(
		vote("a", core.SignalLong, 0.9),
		vote("b", core.SignalShort, 0.9),
	)

	signals := ensemble.Evaluate(&core.MarketView{}, []string{"b"})
	require.Len(t, signals, 1)
	require.Equal(t, "b", signals[0].Strategy)
}

func TestEnsemble_WeightedStrength(t *testing.T) {
	ensemble := testEnsemble(
		vote("a", core.SignalLong, 1.0),
		vote("b", core.SignalLong, 0.8),
	)
	ensemble.SetWeight("a", 3)

	signals := ensemble.Evaluate(&core.MarketView{}, nil)
	aggregate := ensemble.Aggregate(signals, core.IndicatorSnapshot{}, time.Now())
	require.Equal(t, core.SignalLong, aggregate.Side)
	require.InDelta(t, (3*1.0+0.8)/4, aggregate.Strength, 1e-9)
}
