package filter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/indicator"
)

const (
	depthLevels    = 5
	atrMeanWindow  = 20
	maxTickSamples = 600
)

// QualityGate checks whether the market can actually absorb the order:
// fresh quote, tight spread, enough opposite-side depth, a stable recent
// tape and no volatility spike in progress.
type QualityGate struct {
	cfg    core.FilterConfig
	log    core.Logger
	window *PriceWindow
}

func NewQualityGate(cfg core.FilterConfig, log core.Logger) *QualityGate {
	return &QualityGate{
		cfg:    cfg,
		log:    log,
		window: NewPriceWindow(cfg.StabilityWindow),
	}
}

func (g *QualityGate) Name() string { return "execution_quality" }

// Observe feeds a live quote into the stability window. The bot calls this
// on every ticker, not only when a signal is pending.
func (g *QualityGate) Observe(t core.Ticker) {
	g.window.Add(t.Last, t.Time)
}

func (g *QualityGate) Check(_ context.Context, d *Decision) Verdict {
	now := d.Ticker.Time
	if now.IsZero() {
		now = time.Now()
	}

	// Staleness is measured against the evaluation instant, which in a
	// backtest is the candle time, not the wall clock
	evalTime := d.Signal.Time
	if evalTime.IsZero() {
		evalTime = time.Now()
	}
	if g.cfg.MaxTickerStaleness > 0 && d.Ticker.Stale(evalTime, g.cfg.MaxTickerStaleness) {
		return reject("ticker stale")
	}

	if spread := d.Ticker.SpreadPct(); spread > g.cfg.MaxSpreadPct {
		return reject(fmt.Sprintf("spread %.4f%% above %.4f%%", spread*100, g.cfg.MaxSpreadPct*100))
	}

	// The taker order consumes the opposite side of the book
	oppositeSide := d.Signal.Side.OrderSide().Inverse()
	need := math.Max(g.cfg.DepthMultiplier*d.OrderSize, g.cfg.MinDepthUSDT)
	if got := d.Book.DepthQuote(oppositeSide, depthLevels); got < need {
		return reject(fmt.Sprintf("depth %.0f below required %.0f", got, need))
	}

	if swing := g.window.RangePct(now); swing > g.cfg.StabilityThresholdPct {
		return reject(fmt.Sprintf("price swing %.3f%% above %.3f%% in window", swing*100, g.cfg.StabilityThresholdPct*100))
	}

	if verdict := g.checkATRSpike(d); !verdict.Passed {
		return verdict
	}

	return pass("market quality ok")
}

// checkATRSpike compares the current ATR to its rolling mean; a spike
// means the candle under evaluation is not the market we measured
func (g *QualityGate) checkATRSpike(d *Decision) Verdict {
	df := d.View.Primary
	snap := d.Signal.Snapshot
	if df == nil || df.Len() < atrMeanWindow+15 || snap.ATR <= 0 {
		return pass("atr history too short")
	}

	atr := indicator.ATR(df.High, df.Low, df.Close, 14)
	var sum float64
	var n int
	for i := 1; i <= atrMeanWindow; i++ {
		v := atr.Last(i)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return pass("atr history too short")
	}

	mean := sum / float64(n)
	if snap.ATR > g.cfg.ATRSpikeMultiplier*mean {
		return reject(fmt.Sprintf("atr %.4f spiked above %.1fx mean %.4f", snap.ATR, g.cfg.ATRSpikeMultiplier, mean))
	}
	return pass("volatility normal")
}

// PriceWindow is a sliding window of tick prices used for the stability
// check. Safe for concurrent use.
type PriceWindow struct {
	mu        sync.Mutex
	retention time.Duration
	samples   []priceSample
}

type priceSample struct {
	price float64
	at    time.Time
}

func NewPriceWindow(retention time.Duration) *PriceWindow {
	if retention <= 0 {
		retention = 30 * time.Second
	}
	return &PriceWindow{retention: retention}
}

// Add records a tick and evicts samples that fell out of the window
func (w *PriceWindow) Add(price float64, at time.Time) {
	if price <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, priceSample{price: price, at: at})

	cutoff := at.Add(-w.retention)
	start := 0
	for start < len(w.samples) && w.samples[start].at.Before(cutoff) {
		start++
	}
	w.samples = w.samples[start:]

	if len(w.samples) > maxTickSamples {
		w.samples = w.samples[len(w.samples)-maxTickSamples:]
	}
}

// RangePct returns (max-min)/min over the samples still inside the window
// at the given instant. Fewer than two samples mean no measurable swing.
func (w *PriceWindow) RangePct(now time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.retention)
	low, high := math.MaxFloat64, 0.0
	count := 0
	for _, s := range w.samples {
		if s.at.Before(cutoff) {
			continue
		}
		low = math.Min(low, s.price)
		high = math.Max(high, s.price)
		count++
	}

	if count < 2 || low <= 0 {
		return 0
	}
	return (high - low) / low
}
