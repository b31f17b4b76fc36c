package filter

import (
	"context"
	"math"

	"github.com/quorumtrade/quorum/core"
)

// TrendGate vetoes entries that fight a strong directional market. The
// rule list is deliberately explicit; every veto names the condition that
// fired so rejected tags stay debuggable.
type TrendGate struct {
	log core.Logger
}

func NewTrendGate(log core.Logger) *TrendGate {
	return &TrendGate{log: log}
}

func (g *TrendGate) Name() string { return "trend" }

func (g *TrendGate) Check(_ context.Context, d *Decision) Verdict {
	if !d.Signal.Side.IsEntry() {
		return pass("not an entry")
	}

	snap := d.Signal.Snapshot
	momentumHeavy := snap.ATR > 0 && math.Abs(snap.MACDHist) > snap.ATR*0.5

	if d.Signal.Side == core.SignalLong {
		switch {
		case snap.ADX > 25 && snap.EMA9 < snap.EMA21 && snap.MACDHist < 0:
			return reject("long against established downtrend")
		case snap.RSI < 20:
			return reject("long into capitulation")
		case snap.PercentB < 0 && snap.MACDHist < 0:
			return reject("long below bands with momentum down")
		case momentumHeavy && snap.MACDHist < 0 && snap.ADX > 20:
			return reject("long against heavy downside momentum")
		}
		return pass("no downtrend veto")
	}

	switch {
	case snap.ADX > 25 && snap.EMA9 > snap.EMA21 && snap.MACDHist > 0:
		return reject("short against established uptrend")
	case snap.RSI > 80:
		return reject("short into euphoria")
	case snap.PercentB > 1 && snap.MACDHist > 0:
		return reject("short above bands with momentum up")
	case momentumHeavy && snap.MACDHist > 0 && snap.ADX > 20:
		return reject("short against heavy upside momentum")
	}
	return pass("no uptrend veto")
}
