package filter

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/quorumtrade/quorum/core"
)

// PolicyGate consults the optional policy advisor last, after every cheap
// gate already passed. The advisor can veto the entry or suggest bounded
// parameter adjustments that travel with the decision.
type PolicyGate struct {
	cfg     core.PluginConfig
	advisor core.Advisor
	log     core.Logger
}

func NewPolicyGate(cfg core.PluginConfig, advisor core.Advisor, log core.Logger) *PolicyGate {
	return &PolicyGate{cfg: cfg, advisor: advisor, log: log}
}

func (g *PolicyGate) Name() string { return "llm_policy" }

func (g *PolicyGate) Check(ctx context.Context, d *Decision) Verdict {
	if !g.cfg.LLMEnabled || g.advisor == nil {
		return pass("disabled")
	}

	req := core.AdviceRequest{
		Pair:        d.Pair,
		CandleHash:  CandleHash(d.View),
		Fingerprint: SignalFingerprint(d.Signal),
		Signal:      d.Signal,
		Regime:      string(d.Regime.Regime),
		DailyPnL:    d.DailyPnL,
		WinRate:     d.WinRate,
	}

	callCtx := ctx
	if g.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.LLMTimeout)
		defer cancel()
	}

	advice, err := g.advisor.Advise(callCtx, req)
	if err != nil {
		g.log.WithError(err).Warn("policy advisor failed")
		if g.cfg.LLMFailureMode == core.FailureReject {
			return reject("advisor unavailable")
		}
		return pass("advisor unavailable, passing")
	}

	if !advice.Approve {
		return reject("vetoed: " + advice.Reason)
	}

	d.Advice = &advice
	return pass("approved: " + advice.Reason)
}

// CandleHash identifies the market state the decision was made on: same
// pair, same closing candle, same hash
func CandleHash(view *core.MarketView) string {
	if view == nil || view.Primary == nil || view.Primary.Len() == 0 {
		return ""
	}

	df := view.Primary
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%.8f|%.8f",
		df.Pair,
		df.Time[len(df.Time)-1].Unix(),
		df.Close.Last(0),
		df.Volume.Last(0),
	)
	return fmt.Sprintf("%016x", h.Sum64())
}

// SignalFingerprint folds the aggregate into a short cache key. Strength
// and agreement are bucketed so insignificant jitter still hits the cache.
func SignalFingerprint(signal core.AggregatedSignal) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%.0f|%.0f|%d",
		signal.Side,
		signal.Strength*10,
		signal.Agreement*10,
		len(signal.Contributors),
	)
	return fmt.Sprintf("%016x", h.Sum64())
}
