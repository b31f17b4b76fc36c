package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quorumtrade/quorum/core"

	"github.com/stretchr/testify/require"
)

func bullishView(n int) *core.MarketView {
	df := &core.Dataframe{Pair: "BTCUSDT", Metadata: make(map[string]core.Series[float64])}
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		df.Open = append(df.Open, price)
		price += 0.2
		df.Close = append(df.Close, price)
		df.High = append(df.High, price+0.1)
		df.Low = append(df.Low, price-0.3)
		df.Volume = append(df.Volume, 1500)
		df.Time = append(df.Time, base.Add(time.Duration(i)*time.Minute))
	}
	return &core.MarketView{
		Primary: df,
		Snapshot: core.IndicatorSnapshot{
			Price: price, EMA9: price - 1, EMA21: price - 2, EMA55: price - 4,
			VolumeRatio: 1.3,
		},
	}
}

func longDecision(strength, agreement float64) *Decision {
	view := bullishView(60)
	return &Decision{
		Pair: "BTCUSDT",
		Signal: core.AggregatedSignal{
			Side:       core.SignalLong,
			Strength:   strength,
			Agreement:  agreement,
			Confidence: 0.8,
			Snapshot:   view.Snapshot,
			Time:       time.Now(),
		},
		View: view,
	}
}

type stubGate struct {
	name    string
	verdict Verdict
	calls   int
}

func (g *stubGate) Name() string { return g.name }
func (g *stubGate) Check(_ context.Context, _ *Decision) Verdict {
	g.calls++
	return g.verdict
}

func TestPipeline_ShortCircuits(t *testing.T) {
	first := &stubGate{name: "first", verdict: pass("ok")}
	second := &stubGate{name: "second", verdict: reject("nope")}
	third := &stubGate{name: "third", verdict: pass("ok")}

	pipeline := NewPipeline(core.NewNopLogger(), first, second, third)
	d := longDecision(0.9, 0.9)

	require.False(t, pipeline.Run(context.Background(), d))
	require.Equal(t, "second", d.RejectionStage)
	require.Len(t, d.Gates, 2)
	require.True(t, d.Gates[0].Passed)
	require.False(t, d.Gates[1].Passed)
	require.Equal(t, "nope", d.Gates[1].Reason)
	require.Zero(t, third.calls)
}

// Gates are pure over the decision values, so identical inputs must
// produce identical verdict chains
func TestPipeline_DeterministicForSameInput(t *testing.T) {
	run := func(mutate func(*Decision)) *Decision {
		pipeline := NewPipeline(core.NewNopLogger(),
			NewBreakerGate(fixedBreaker{}),
			NewDirectionGate(core.DefaultConfig().Filters, core.NewNopLogger()),
			NewTrendGate(core.NewNopLogger()),
		)
		d := longDecision(0.82, 0.80)
		d.Signal.Snapshot.RSI = 55
		if mutate != nil {
			mutate(d)
		}
		d.View.Snapshot = d.Signal.Snapshot
		pipeline.Run(context.Background(), d)
		return d
	}

	first, second := run(nil), run(nil)
	require.Empty(t, first.RejectionStage)
	require.Equal(t, first.Gates, second.Gates)

	invert := func(d *Decision) {
		d.Signal.Snapshot.EMA9 = 95
		d.Signal.Snapshot.EMA21 = 96
	}
	first, second = run(invert), run(invert)
	require.Equal(t, "direction", first.RejectionStage)
	require.Equal(t, first.RejectionStage, second.RejectionStage)
	require.Equal(t, first.Gates, second.Gates)
}

type fixedBreaker struct {
	tripped bool
	reason  string
}

func (b fixedBreaker) Tripped(time.Time) (bool, string) { return b.tripped, b.reason }

func TestBreakerGate_RejectsWhileTripped(t *testing.T) {
	gate := NewBreakerGate(fixedBreaker{tripped: true, reason: "daily loss limit"})
	d := longDecision(0.9, 0.9)

	pipeline := NewPipeline(core.NewNopLogger(), gate)
	require.False(t, pipeline.Run(context.Background(), d))
	require.Equal(t, "circuit_breaker", d.RejectionStage)

	gate = NewBreakerGate(fixedBreaker{})
	verdict := gate.Check(context.Background(), d)
	require.True(t, verdict.Passed)
}

func TestDirectionGate_UptrendConfirmation(t *testing.T) {
	gate := NewDirectionGate(core.DefaultConfig().Filters, core.NewNopLogger())

	// thresholds cleared but the EMA ladder is inverted
	d := longDecision(0.82, 0.80)
	d.Signal.Snapshot.EMA9 = 95
	d.Signal.Snapshot.EMA21 = 96
	d.View.Snapshot = d.Signal.Snapshot

	verdict := gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "uptrend not confirmed")

	// intact uptrend passes
	d = longDecision(0.82, 0.80)
	verdict = gate.Check(context.Background(), d)
	require.True(t, verdict.Passed)
}

func TestDirectionGate_AsymmetricThresholds(t *testing.T) {
	gate := NewDirectionGate(core.DefaultConfig().Filters, core.NewNopLogger())

	// 0.75 strength is enough for a short but not for a long
	short := longDecision(0.75, 0.70)
	short.Signal.Side = core.SignalShort
	require.True(t, gate.Check(context.Background(), short).Passed)

	long := longDecision(0.75, 0.70)
	verdict := gate.Check(context.Background(), long)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "strength")
}

func TestDirectionGate_AdaptiveThresholds(t *testing.T) {
	gate := NewDirectionGate(core.DefaultConfig().Filters, core.NewNopLogger())

	// 0.84 clears the 0.80 baseline but not the degraded-win-rate floor
	d := longDecision(0.84, 0.86)
	d.WinRate = 0.25
	d.TradeCount = 20
	verdict := gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)

	// small sample, adaptation stays off
	d = longDecision(0.84, 0.86)
	d.WinRate = 0.25
	d.TradeCount = 5
	require.True(t, gate.Check(context.Background(), d).Passed)

	// mid band tightens to 0.82/0.80
	d = longDecision(0.81, 0.86)
	d.WinRate = 0.35
	d.TradeCount = 20
	require.False(t, gate.Check(context.Background(), d).Passed)
}

func TestTrendGate_VetoesCounterTrend(t *testing.T) {
	gate := NewTrendGate(core.NewNopLogger())

	d := longDecision(0.9, 0.9)
	d.Signal.Snapshot = core.IndicatorSnapshot{
		ADX: 30, EMA9: 95, EMA21: 97, MACDHist: -0.5, RSI: 40, ATR: 10,
	}
	verdict := gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "downtrend")

	d.Signal.Snapshot = core.IndicatorSnapshot{RSI: 15, ATR: 10}
	verdict = gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "capitulation")

	short := longDecision(0.9, 0.9)
	short.Signal.Side = core.SignalShort
	short.Signal.Snapshot = core.IndicatorSnapshot{RSI: 85, ATR: 10}
	verdict = gate.Check(context.Background(), short)
	require.False(t, verdict.Passed)
}

func qualityDecision() *Decision {
	d := longDecision(0.9, 0.9)
	now := time.Now()
	d.Ticker = core.Ticker{Pair: "BTCUSDT", Last: 100, Bid: 99.99, Ask: 100.0, Time: now}
	d.OrderSize = 1000
	d.Book = core.OrderBook{
		Pair: "BTCUSDT",
		Bids: []core.PriceLevel{{Price: 99.99, Quantity: 500}},
		Asks: []core.PriceLevel{{Price: 100.0, Quantity: 500}},
		Time: now,
	}
	return d
}

func TestQualityGate_Spread(t *testing.T) {
	gate := NewQualityGate(core.DefaultConfig().Filters, core.NewNopLogger())

	d := qualityDecision()
	require.True(t, gate.Check(context.Background(), d).Passed)

	d.Ticker.Ask = 100.5
	verdict := gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "spread")
}

func TestQualityGate_Depth(t *testing.T) {
	gate := NewQualityGate(core.DefaultConfig().Filters, core.NewNopLogger())

	d := qualityDecision()
	// top-5 ask depth must cover 5x the 1000 USDT order
	d.Book.Asks = []core.PriceLevel{{Price: 100, Quantity: 20}}
	verdict := gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "depth")
}

func TestQualityGate_Staleness(t *testing.T) {
	gate := NewQualityGate(core.DefaultConfig().Filters, core.NewNopLogger())

	d := qualityDecision()
	d.Ticker.Time = time.Now().Add(-time.Minute)
	verdict := gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "stale")
}

func TestQualityGate_ATRSpike(t *testing.T) {
	gate := NewQualityGate(core.DefaultConfig().Filters, core.NewNopLogger())

	// The synthetic tape has a constant true range of 0.4, so 1.1 sits
	// well above twice the rolling mean
	d := longDecision(0.9, 0.9)
	d.Signal.Snapshot.ATR = 1.1
	verdict := gate.checkATRSpike(d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "spiked")

	d.Signal.Snapshot.ATR = 0.5
	require.True(t, gate.checkATRSpike(d).Passed)

	// Too little history to measure a baseline
	short := longDecision(0.9, 0.9)
	short.View = bullishView(20)
	short.Signal.Snapshot.ATR = 5
	require.True(t, gate.checkATRSpike(short).Passed)
}

func TestPriceWindow_RangePct(t *testing.T) {
	window := NewPriceWindow(30 * time.Second)
	now := time.Now()

	window.Add(100, now.Add(-20*time.Second))
	window.Add(101, now.Add(-10*time.Second))
	window.Add(100.5, now)

	require.InDelta(t, 0.01, window.RangePct(now), 1e-9)

	// the old extreme ages out of the window
	require.InDelta(t, 0.5/100.5, window.RangePct(now.Add(15*time.Second)), 1e-9)
}

type fixedScorer struct {
	score float64
	err   error
}

func (s fixedScorer) Score(context.Context, core.Features) (float64, error) {
	return s.score, s.err
}

func TestMLGate_Modes(t *testing.T) {
	cfg := core.DefaultConfig().Plugins
	d := longDecision(0.9, 0.9)

	// off mode never calls the scorer
	gate := NewMLGate(cfg, fixedScorer{score: 0}, core.NewNopLogger())
	require.True(t, gate.Check(context.Background(), d).Passed)

	// shadow records but passes a failing score
	cfg.MLMode = core.MLModeShadow
	gate = NewMLGate(cfg, fixedScorer{score: 0.1}, core.NewNopLogger())
	verdict := gate.Check(context.Background(), d)
	require.True(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "shadow")

	// filter rejects below threshold
	cfg.MLMode = core.MLModeFilter
	gate = NewMLGate(cfg, fixedScorer{score: 0.1}, core.NewNopLogger())
	require.False(t, gate.Check(context.Background(), d).Passed)

	gate = NewMLGate(cfg, fixedScorer{score: 0.9}, core.NewNopLogger())
	require.True(t, gate.Check(context.Background(), d).Passed)
}

func TestMLGate_FailureModes(t *testing.T) {
	cfg := core.DefaultConfig().Plugins
	cfg.MLMode = core.MLModeFilter
	d := longDecision(0.9, 0.9)

	gate := NewMLGate(cfg, fixedScorer{err: errors.New("model gone")}, core.NewNopLogger())
	require.True(t, gate.Check(context.Background(), d).Passed)

	cfg.MLFailureMode = core.FailureReject
	gate = NewMLGate(cfg, fixedScorer{err: errors.New("model gone")}, core.NewNopLogger())
	require.False(t, gate.Check(context.Background(), d).Passed)
}

type fixedAdvisor struct {
	advice core.Advice
	err    error
	gotReq core.AdviceRequest
}

func (a *fixedAdvisor) Advise(_ context.Context, req core.AdviceRequest) (core.Advice, error) {
	a.gotReq = req
	return a.advice, a.err
}

func TestPolicyGate_VetoAndAdvice(t *testing.T) {
	cfg := core.DefaultConfig().Plugins
	cfg.LLMEnabled = true

	advisor := &fixedAdvisor{advice: core.Advice{Approve: false, Reason: "chop ahead"}}
	gate := NewPolicyGate(cfg, advisor, core.NewNopLogger())
	d := longDecision(0.9, 0.9)

	verdict := gate.Check(context.Background(), d)
	require.False(t, verdict.Passed)
	require.Contains(t, verdict.Reason, "chop ahead")
	require.NotEmpty(t, advisor.gotReq.CandleHash)
	require.NotEmpty(t, advisor.gotReq.Fingerprint)

	mult := 1.5
	advisor.advice = core.Advice{Approve: true, Reason: "clean setup", PositionMultiplier: &mult}
	verdict = gate.Check(context.Background(), d)
	require.True(t, verdict.Passed)
	require.NotNil(t, d.Advice)
	require.Equal(t, 1.5, *d.Advice.PositionMultiplier)
}

func TestPolicyGate_FailureModes(t *testing.T) {
	cfg := core.DefaultConfig().Plugins
	cfg.LLMEnabled = true
	d := longDecision(0.9, 0.9)

	advisor := &fixedAdvisor{err: errors.New("timeout")}
	gate := NewPolicyGate(cfg, advisor, core.NewNopLogger())
	require.True(t, gate.Check(context.Background(), d).Passed)

	cfg.LLMFailureMode = core.FailureReject
	gate = NewPolicyGate(cfg, advisor, core.NewNopLogger())
	require.False(t, gate.Check(context.Background(), d).Passed)
}

func TestSignalFingerprint_BucketsJitter(t *testing.T) {
	a := core.AggregatedSignal{Side: core.SignalLong, Strength: 0.801, Agreement: 0.75}
	b := core.AggregatedSignal{Side: core.SignalLong, Strength: 0.803, Agreement: 0.75}
	c := core.AggregatedSignal{Side: core.SignalShort, Strength: 0.801, Agreement: 0.75}

	require.Equal(t, SignalFingerprint(a), SignalFingerprint(b))
	require.NotEqual(t, SignalFingerprint(a), SignalFingerprint(c))
}
