// Package filter implements the ordered gate pipeline every entry signal
// must clear before it reaches the risk manager. Gates are independent,
// record their verdict for the trade tag, and a single failure stops the
// pipeline.
package filter

import (
	"context"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/regime"
)

// Verdict is the outcome of a single gate check
type Verdict struct {
	Passed bool
	Reason string
}

func pass(reason string) Verdict   { return Verdict{Passed: true, Reason: reason} }
func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Gate inspects a pending entry decision and votes to let it through
type Gate interface {
	Name() string
	Check(ctx context.Context, d *Decision) Verdict
}

// Decision carries everything the gates inspect and is annotated as it
// moves down the pipeline
type Decision struct {
	Pair   string
	Signal core.AggregatedSignal
	View   *core.MarketView
	Regime regime.Classification

	Ticker core.Ticker
	Book   core.OrderBook

	// OrderSize is the proposed notional in quote currency
	OrderSize float64

	// Rolling account state used by adaptive thresholds and the advisor
	WinRate    float64
	TradeCount int
	DailyPnL   float64

	// Advice is populated by the policy gate when an advisor is wired in
	Advice *core.Advice

	Gates          []core.GateResult
	RejectionStage string
}

// Pipeline runs gates in registration order and short-circuits on the
// first rejection
type Pipeline struct {
	gates []Gate
	log   core.Logger
}

func NewPipeline(log core.Logger, gates ...Gate) *Pipeline {
	return &Pipeline{gates: gates, log: log}
}

// Run checks the decision against every gate. It returns false on the
// first rejection, leaving the failing stage in d.RejectionStage. Every
// gate that ran has a result in d.Gates either way.
func (p *Pipeline) Run(ctx context.Context, d *Decision) bool {
	for _, gate := range p.gates {
		verdict := gate.Check(ctx, d)
		d.Gates = append(d.Gates, core.GateResult{
			Gate:   gate.Name(),
			Passed: verdict.Passed,
			Reason: verdict.Reason,
		})

		if !verdict.Passed {
			d.RejectionStage = gate.Name()
			p.log.WithFields(map[string]any{
				"pair":   d.Pair,
				"side":   d.Signal.Side,
				"stage":  gate.Name(),
				"reason": verdict.Reason,
			}).Info("signal rejected")
			return false
		}
	}
	return true
}

// FeaturesFrom flattens a decision into the fixed feature vector handed
// to quality scorers
func FeaturesFrom(d *Decision) core.Features {
	snap := d.Signal.Snapshot
	return core.Features{
		SignalStrength: d.Signal.Strength,
		Agreement:      d.Signal.Agreement,
		RSI:            snap.RSI,
		ADX:            snap.ADX,
		ATRPct:         snap.ATRPct,
		PercentB:       snap.PercentB,
		VolumeRatio:    snap.VolumeRatio,
		PriceChange10:  snap.PriceChange10,
		Volatility10:   snap.Volatility,
		RegimeCode:     float64(d.Regime.Regime.Code()),
	}
}
