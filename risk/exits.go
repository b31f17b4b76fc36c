package risk

import (
	"fmt"
	"math"

	"github.com/quorumtrade/quorum/core"
)

// ExitReason names the rule that closed a position
type ExitReason string

const (
	ExitStopLoss           ExitReason = "stop_loss"
	ExitTakeProfit         ExitReason = "take_profit"
	ExitTrailingTakeProfit ExitReason = "trailing_take_profit"
	ExitTrailingStop       ExitReason = "trailing_stop"
	ExitManual             ExitReason = "manual"
)

// ExitEvaluator runs the per-tick exit checks over the open position.
// Rules fire in a fixed order; the first hit wins and the position state
// (extremes, trailing arms, price window) is updated on every call.
type ExitEvaluator struct {
	cfg     core.RiskConfig
	feeRate float64
	log     core.Logger
}

func NewExitEvaluator(cfg core.RiskConfig, feeRate float64, log core.Logger) *ExitEvaluator {
	return &ExitEvaluator{cfg: cfg, feeRate: feeRate, log: log}
}

// Evaluate checks the position against the exit rules at the given price.
// closeRequested marks an external close (shutdown, reversal signal).
func (e *ExitEvaluator) Evaluate(p *core.Position, price float64, closeRequested bool) (ExitReason, bool) {
	if p == nil || price <= 0 {
		return "", false
	}

	p.Track(price)
	e.trackProfitExtremes(p, price)

	long := p.Side == core.PositionSideLong

	// 1. Stop loss
	if p.StopLoss > 0 {
		if (long && price <= p.StopLoss) || (!long && price >= p.StopLoss) {
			return ExitStopLoss, true
		}
	}

	// 2. Fixed take profit
	if p.TakeProfit > 0 {
		if (long && price >= p.TakeProfit) || (!long && price <= p.TakeProfit) {
			return ExitTakeProfit, true
		}
	}

	// 3. Dynamic trailing take profit
	if e.cfg.DynamicTP.Enabled {
		if reason, hit := e.evaluateDynamicTP(p, price, long); hit {
			return reason, true
		}
	}

	// 4. Trailing stop
	if e.cfg.TrailingStopPct > 0 {
		if reason, hit := e.evaluateTrailing(p, price, long); hit {
			return reason, true
		}
	}

	// 5. External close request
	if closeRequested {
		return ExitManual, true
	}

	return "", false
}

// evaluateDynamicTP arms once net profit clears the dynamic threshold,
// then watches for price falling back through the recent mean
func (e *ExitEvaluator) evaluateDynamicTP(p *core.Position, price float64, long bool) (ExitReason, bool) {
	if !p.DynamicTPActive {
		net := p.NetProfit(price, e.feeRate)
		threshold := math.Max(e.cfg.DynamicTP.MinProfitUSDT,
			p.Amount*price*e.feeRate*e.cfg.DynamicTP.FeeMultiplier)
		if net <= threshold {
			return "", false
		}

		p.DynamicTPActive = true
		p.RecentPrices = nil
		e.log.WithFields(map[string]any{
			"pair":      p.Pair,
			"net":       fmt.Sprintf("%.4f", net),
			"threshold": fmt.Sprintf("%.4f", threshold),
		}).Info("dynamic take profit armed")
	}

	// The mean covers only previously tracked prices; the current tick
	// joins the window after the check
	mean := p.MeanRecentPrice()
	if mean > 0 {
		if long && price <= mean*(1-e.cfg.DynamicTP.FallbackPct) {
			return ExitTrailingTakeProfit, true
		}
		if !long && price >= mean*(1+e.cfg.DynamicTP.FallbackPct) {
			return ExitTrailingTakeProfit, true
		}
	}

	p.PushPrice(price, e.cfg.DynamicTP.PriceWindow)
	return "", false
}

// evaluateTrailing arms the trailing stop only once it would lock in
// profit; a trailing price on the wrong side of entry is just a worse
// stop loss
func (e *ExitEvaluator) evaluateTrailing(p *core.Position, price float64, long bool) (ExitReason, bool) {
	if long {
		trailing := p.HighestPrice * (1 - e.cfg.TrailingStopPct)
		if trailing <= p.EntryPrice {
			return "", false
		}
		if !p.TrailingActive {
			p.TrailingActive = true
			e.log.WithField("trailing", trailing).Info("trailing stop armed")
		}
		if price <= trailing {
			return ExitTrailingStop, true
		}
		return "", false
	}

	trailing := p.LowestPrice * (1 + e.cfg.TrailingStopPct)
	if trailing >= p.EntryPrice {
		return "", false
	}
	if !p.TrailingActive {
		p.TrailingActive = true
		e.log.WithField("trailing", trailing).Info("trailing stop armed")
	}
	if price >= trailing {
		return ExitTrailingStop, true
	}
	return "", false
}

// trackProfitExtremes keeps the best and worst net profit seen, the MFE
// and MAE of the eventual trade record
func (e *ExitEvaluator) trackProfitExtremes(p *core.Position, price float64) {
	net := p.NetProfit(price, e.feeRate)
	if net > p.MaxProfit {
		p.MaxProfit = net
	}
	if net < p.MaxLoss {
		p.MaxLoss = net
	}
}
