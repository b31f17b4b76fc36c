package filter

import (
	"context"
	"fmt"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/indicator"
)

// adaptiveMinTrades is the sample size required before the win rate is
// allowed to move the thresholds
const adaptiveMinTrades = 10

// DirectionGate enforces the asymmetric entry thresholds. Longs carry a
// stricter baseline plus a structural uptrend confirmation; both tighten
// further while the rolling win rate is poor.
type DirectionGate struct {
	cfg core.FilterConfig
	log core.Logger
}

func NewDirectionGate(cfg core.FilterConfig, log core.Logger) *DirectionGate {
	return &DirectionGate{cfg: cfg, log: log}
}

func (g *DirectionGate) Name() string { return "direction" }

func (g *DirectionGate) Check(_ context.Context, d *Decision) Verdict {
	if !d.Signal.Side.IsEntry() {
		return pass("not an entry")
	}

	minStrength := g.cfg.ShortMinStrength
	minAgreement := g.cfg.ShortMinAgreement
	if d.Signal.Side == core.SignalLong {
		minStrength, minAgreement = g.longThresholds(d)
	}

	if d.Signal.Strength < minStrength {
		return reject(fmt.Sprintf("strength %.2f below %.2f", d.Signal.Strength, minStrength))
	}
	if d.Signal.Agreement < minAgreement {
		return reject(fmt.Sprintf("agreement %.2f below %.2f", d.Signal.Agreement, minAgreement))
	}
	if d.Signal.Confidence < g.cfg.MinConfidence {
		return reject(fmt.Sprintf("confidence %.2f below %.2f", d.Signal.Confidence, g.cfg.MinConfidence))
	}

	if d.Signal.Side == core.SignalLong {
		if ok, detail := uptrendConfirmed(d.View); !ok {
			return reject("uptrend not confirmed: " + detail)
		}
	}

	return pass("thresholds met")
}

// longThresholds raises the long-side floors while the recent win rate is
// poor. The account has to earn its way back to the baseline.
func (g *DirectionGate) longThresholds(d *Decision) (float64, float64) {
	minStrength := g.cfg.LongMinStrength
	minAgreement := g.cfg.LongMinAgreement

	if !g.cfg.AdaptiveThresholds || d.TradeCount < adaptiveMinTrades {
		return minStrength, minAgreement
	}

	switch {
	case d.WinRate < 0.30:
		return 0.85, 0.85
	case d.WinRate < 0.40:
		return 0.82, 0.80
	}
	return minStrength, minAgreement
}

// uptrendConfirmed applies the structural checks a long entry must show:
// a stacked EMA ladder, price leading it, mostly bullish recent candles
// and volume backing the move
func uptrendConfirmed(view *core.MarketView) (bool, string) {
	snap := view.Snapshot
	df := view.Primary

	if !(snap.EMA9 > snap.EMA21 && snap.EMA21 > snap.EMA55) {
		return false, "ema stack not bullish"
	}
	if snap.Price <= snap.EMA9 {
		return false, "price below ema9"
	}

	if df.Len() < 20 {
		return false, "insufficient history"
	}

	bullish := 0
	for i := 0; i < 3; i++ {
		if df.Close.Last(i) > df.Open.Last(i) {
			bullish++
		}
	}
	if bullish < 2 {
		return false, fmt.Sprintf("only %d of last 3 candles bullish", bullish)
	}

	volumeSMA := indicator.SMA(df.Volume, 20).Last(0)
	recent3 := (df.Volume.Last(0) + df.Volume.Last(1) + df.Volume.Last(2)) / 3
	if !(snap.VolumeRatio >= 1.2 || recent3 > volumeSMA) {
		return false, "volume not confirming"
	}

	return true, ""
}
