package risk

import (
	"math"

	"github.com/quorumtrade/quorum/core"
)

// Manager turns an accepted signal into order size and protective price
// levels. It never talks to the exchange.
type Manager struct {
	cfg     core.RiskConfig
	filters core.FilterConfig
	bounds  core.AdviceBounds
	log     core.Logger
}

func NewManager(cfg core.RiskConfig, filters core.FilterConfig, bounds core.AdviceBounds, log core.Logger) *Manager {
	return &Manager{cfg: cfg, filters: filters, bounds: bounds, log: log}
}

// SizeRequest carries everything sizing depends on
type SizeRequest struct {
	Balance  float64
	Price    float64
	Leverage int

	Side     core.SignalSide
	Strength float64

	Snapshot core.IndicatorSnapshot
	Metrics  *Metrics
	Advice   *core.Advice

	// BreakerFactor is the defensive multiplier from the circuit breaker,
	// 1.0 in normal operation
	BreakerFactor float64
}

// SizeResult is the sized order with every factor that shaped it, kept
// for the trade log
type SizeResult struct {
	Quote float64
	Base  float64

	Kelly          float64
	VolFactor      float64
	StrengthFactor float64
	StreakFactor   float64
	AdviceFactor   float64
}

// Size computes the order size in quote and base units. A zero quote size
// means the trade must not happen.
func (m *Manager) Size(req SizeRequest) SizeResult {
	if req.Price <= 0 || req.Balance <= 0 || req.Leverage < 1 {
		return SizeResult{}
	}

	result := SizeResult{
		Kelly:          1,
		VolFactor:      1,
		StrengthFactor: m.strengthFactor(req.Side, req.Strength),
		StreakFactor:   1,
		AdviceFactor:   1,
	}

	if m.cfg.UseKelly && req.Metrics != nil {
		result.Kelly = req.Metrics.Kelly(m.cfg.KellyFractionCap)
	}

	if req.Snapshot.Volatility > m.cfg.VolatilityHighThreshold {
		result.VolFactor = m.cfg.VolatilityFactor
	}

	if req.Metrics != nil {
		result.StreakFactor = streakFactor(req.Metrics.ConsecutiveLosses())
	}

	if req.Advice != nil && req.Advice.PositionMultiplier != nil {
		result.AdviceFactor = clampRange(*req.Advice.PositionMultiplier,
			m.bounds.PositionMultiplierMin, m.bounds.PositionMultiplierMax)
	}

	breaker := req.BreakerFactor
	if breaker <= 0 {
		breaker = 1
	}

	quote := m.cfg.PositionSizePct * req.Balance * float64(req.Leverage) *
		result.Kelly * result.VolFactor * result.StrengthFactor *
		result.StreakFactor * result.AdviceFactor * breaker

	if quote <= 0 {
		return result
	}

	quote = clampRange(quote, m.cfg.MinOrderUSDT, m.cfg.MaxOrderUSDT)

	result.Quote = quote
	result.Base = quote / req.Price
	return result
}

// strengthFactor scales linearly from 0.5x at the side's minimum strength
// threshold to 1.0x at full strength
func (m *Manager) strengthFactor(side core.SignalSide, strength float64) float64 {
	minStrength := m.filters.ShortMinStrength
	if side == core.SignalLong {
		minStrength = m.filters.LongMinStrength
	}

	if minStrength >= 1 {
		return 1
	}

	factor := 0.5 + 0.5*(strength-minStrength)/(1-minStrength)
	return clampRange(factor, 0.5, 1)
}

// streakFactor throttles size while losses pile up; five in a row is the
// kill switch
func streakFactor(consecutiveLosses int) float64 {
	switch {
	case consecutiveLosses >= 5:
		return 0
	case consecutiveLosses == 4:
		return 0.25
	case consecutiveLosses == 3:
		return 0.5
	case consecutiveLosses == 2:
		return 0.75
	}
	return 1
}

// ExitPlan computes the protective levels for a new position. Strategy
// overrides replace the base stop parameters; advisor adjustments are
// clamped to the configured bounds before they apply.
func (m *Manager) ExitPlan(strategy string, side core.PositionSide, entry, atr float64, leverage int, advice *core.Advice) (stopLoss, takeProfit float64) {
	slPct := m.cfg.StopLossPct
	atrMult := m.cfg.ATRMultiplier
	tpPct := m.cfg.TakeProfitPct

	if override, ok := m.cfg.StrategyOverrides[strategy]; ok {
		if override.StopLossPct > 0 {
			slPct = override.StopLossPct
		}
		if override.ATRMultiplier > 0 {
			atrMult = override.ATRMultiplier
		}
	}

	if advice != nil {
		if advice.StopLossPct != nil {
			slPct = clampRange(*advice.StopLossPct, m.bounds.StopLossPctMin, m.bounds.StopLossPctMax)
		}
		if advice.TakeProfitPct != nil {
			tpPct = clampRange(*advice.TakeProfitPct, m.bounds.TakeProfitPctMin, m.bounds.TakeProfitPctMax)
		}
	}

	return stopLossPrice(side, entry, atr, slPct, atrMult, leverage),
		takeProfitPrice(side, entry, tpPct, leverage)
}

// stopLossPrice picks the wider of the fixed and ATR-based stops. Wider
// means further from entry: the stop that survives ordinary noise.
func stopLossPrice(side core.PositionSide, entry, atr, slPct, atrMult float64, leverage int) float64 {
	if leverage < 1 {
		leverage = 1
	}
	move := slPct / float64(leverage)

	if side == core.PositionSideLong {
		fixed := entry * (1 - move)
		if atr <= 0 {
			return fixed
		}
		return math.Min(fixed, entry-atrMult*atr)
	}

	fixed := entry * (1 + move)
	if atr <= 0 {
		return fixed
	}
	return math.Max(fixed, entry+atrMult*atr)
}

// takeProfitPrice places the fixed target the same way the stop is
// placed: tp_pct is a margin return, so the price move is tp_pct over
// leverage
func takeProfitPrice(side core.PositionSide, entry, tpPct float64, leverage int) float64 {
	if leverage < 1 {
		leverage = 1
	}
	move := tpPct / float64(leverage)

	if side == core.PositionSideLong {
		return entry * (1 + move)
	}
	return entry * (1 - move)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
