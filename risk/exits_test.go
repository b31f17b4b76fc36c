package risk

import (
	"testing"
	"time"

	"github.com/quorumtrade/quorum/core"

	"github.com/stretchr/testify/require"
)

func longPosition(entry, amount float64, feeRate float64) *core.Position {
	return &core.Position{
		Pair:       "BTCUSDT",
		Side:       core.PositionSideLong,
		Amount:     amount,
		EntryPrice: entry,
		EntryTime:  time.Now(),
		EntryFee:   entry * amount * feeRate,
		Leverage:   5,
	}
}

func TestExitEvaluator_StopLossFirst(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 97.5
	p.TakeProfit = 100.6

	reason, hit := evaluator.Evaluate(p, 99, false)
	require.False(t, hit, "price between stop and target must not exit, got %s", reason)

	reason, hit = evaluator.Evaluate(p, 97.4, false)
	require.True(t, hit)
	require.Equal(t, ExitStopLoss, reason)
}

func TestExitEvaluator_FixedTakeProfit(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	cfg.DynamicTP.Enabled = false
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 97.5
	p.TakeProfit = 100.6

	reason, hit := evaluator.Evaluate(p, 100.7, false)
	require.True(t, hit)
	require.Equal(t, ExitTakeProfit, reason)
}

func TestExitEvaluator_DynamicTakeProfit(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 90
	p.TakeProfit = 0 // fixed target off, dynamic only

	// net profit at 102 is ~18.8 USDT, far over max(0.08, 10*102*0.0006*1.5)
	_, hit := evaluator.Evaluate(p, 102, false)
	require.False(t, hit)
	require.True(t, p.DynamicTPActive)

	// drift down, keeping each tick above the fallback level
	for _, price := range []float64{101.95, 101.9, 101.85} {
		_, hit = evaluator.Evaluate(p, price, false)
		require.False(t, hit)
	}

	// window mean 101.925, trigger level 101.925 * (1 - 0.004) = 101.52
	reason, hit := evaluator.Evaluate(p, 101.4, false)
	require.True(t, hit)
	require.Equal(t, ExitTrailingTakeProfit, reason)
}

func TestExitEvaluator_DynamicTPNotArmedBelowThreshold(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 90

	// gross 1.0 at 100.1, but fees eat it below the dynamic threshold
	_, hit := evaluator.Evaluate(p, 100.1, false)
	require.False(t, hit)
	require.False(t, p.DynamicTPActive)
}

func TestExitEvaluator_TrailingStop(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	cfg.DynamicTP.Enabled = false
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 90

	// run up to 103: trailing price 103*(1-0.015)=101.455 > entry, armed
	_, hit := evaluator.Evaluate(p, 103, false)
	require.False(t, hit)
	require.True(t, p.TrailingActive)

	reason, hit := evaluator.Evaluate(p, 101.4, false)
	require.True(t, hit)
	require.Equal(t, ExitTrailingStop, reason)
}

func TestExitEvaluator_TrailingNeverArmsBelowEntry(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	cfg.DynamicTP.Enabled = false
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 90

	// peak 100.5: trailing price 99.0 is below entry, must stay unarmed
	_, hit := evaluator.Evaluate(p, 100.5, false)
	require.False(t, hit)
	require.False(t, p.TrailingActive)

	// falling back through the would-be trailing price does nothing
	_, hit = evaluator.Evaluate(p, 99.1, false)
	require.False(t, hit)
	require.False(t, p.TrailingActive)
}

func TestExitEvaluator_ShortTrailing(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	cfg.DynamicTP.Enabled = false
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := &core.Position{
		Pair: "BTCUSDT", Side: core.PositionSideShort,
		Amount: 10, EntryPrice: 100, EntryTime: time.Now(),
		EntryFee: 0.6, Leverage: 5, StopLoss: 110,
	}

	// drop to 97: trailing price 97*(1+0.015)=98.455 < entry, armed
	_, hit := evaluator.Evaluate(p, 97, false)
	require.False(t, hit)
	require.True(t, p.TrailingActive)

	reason, hit := evaluator.Evaluate(p, 98.5, false)
	require.True(t, hit)
	require.Equal(t, ExitTrailingStop, reason)
}

func TestExitEvaluator_ManualLast(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 97.5
	p.TakeProfit = 110

	reason, hit := evaluator.Evaluate(p, 100.2, true)
	require.True(t, hit)
	require.Equal(t, ExitManual, reason)

	// stop loss outranks the external request at the same tick
	p2 := longPosition(100, 10, 0.0006)
	p2.StopLoss = 97.5
	reason, hit = evaluator.Evaluate(p2, 97, true)
	require.True(t, hit)
	require.Equal(t, ExitStopLoss, reason)
}

func TestExitEvaluator_TracksExtremes(t *testing.T) {
	cfg := core.DefaultConfig().Risk
	evaluator := NewExitEvaluator(cfg, 0.0006, core.NewNopLogger())

	p := longPosition(100, 10, 0.0006)
	p.StopLoss = 90

	evaluator.Evaluate(p, 101, false)
	evaluator.Evaluate(p, 99, false)

	require.Equal(t, 101.0, p.HighestPrice)
	require.Equal(t, 99.0, p.LowestPrice)
	require.Greater(t, p.MaxProfit, 0.0)
	require.Less(t, p.MaxLoss, 0.0)
}
