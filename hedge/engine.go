// Package hedge implements band-limited dynamic hedging: a long and a
// short leg of equal size held together, rebalanced whenever price
// drifts a minimum effective step away from the reference price. Each
// rebalance realises the winning leg, migrates part of the profit into
// the losing leg and re-anchors the reference.
package hedge

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/exchange"
)

// State is the engine sub-state
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StatePaused State = "paused"
	StateExited State = "exited"
)

// Exit reasons reported on the closing events
const (
	ReasonLowVolatility  = "low_volatility"
	ReasonRiskCapitalCap = "risk_capital_cap"
	ReasonStop           = "stop"
)

// volWarmupSamples is how many closed candles feed the volatility
// estimate before the low-volatility exit is allowed to trigger
const volWarmupSamples = 20

type leg struct {
	qty   float64
	entry float64
}

func (l *leg) add(qty, price float64) {
	total := l.qty + qty
	if total <= 0 {
		return
	}
	l.entry = (l.entry*l.qty + price*qty) / total
	l.qty = total
}

func (l *leg) reduce(qty float64) {
	l.qty = math.Max(0, l.qty-qty)
}

// ---------------------
// Configuration Options
// ---------------------

// Option configures the hedge engine
type Option func(*Engine)

// WithEventPublisher wires an event sink for leg close notifications
func WithEventPublisher(publish func(core.Event)) Option {
	return func(e *Engine) {
		e.publish = publish
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// ---------------------
// Engine
// ---------------------

// Engine runs the dual-leg rebalance cycle for a single pair. Orders go
// through the broker, so controller-level gating and accounting apply
// unchanged. All entry points are safe for concurrent use; the engine
// itself mutates its legs only under its own lock.
type Engine struct {
	mu     sync.Mutex
	broker core.Broker
	feeder core.Feeder
	cfg    core.Config
	log    core.Logger

	publish func(core.Event)
	clock   func() time.Time

	pair    string
	state   State
	ref     float64
	capital float64

	long  leg
	short leg

	// notional targets per leg in quote currency, re-anchored on every
	// rebalance
	longNotional  float64
	shortNotional float64

	prevClose  float64
	vol        float64
	volSamples int
}

// NewEngine creates a hedge engine bound to one pair. The broker places
// orders and the feeder supplies prices; pass the order controller as
// broker so backoff gating applies.
func NewEngine(cfg core.Config, broker core.Broker, feeder core.Feeder, log core.Logger, options ...Option) *Engine {
	engine := &Engine{
		broker: broker,
		feeder: feeder,
		cfg:    cfg,
		log:    log,
		pair:   cfg.Exchange.Pair,
		state:  StateIdle,
		clock:  time.Now,
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

// State returns the current sub-state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reference returns the current reference price
func (e *Engine) Reference() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ref
}

// Legs returns the tracked quantity of the long and short leg
func (e *Engine) Legs() (long, short float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.long.qty, e.short.qty
}

// Start opens both legs at equal size around the current price. Existing
// exchange legs for the pair are adopted instead of doubled up, and a
// missing side is topped up to base size.
func (e *Engine) Start(ctx context.Context) error {
	if e.cfg.Exchange.PositionMode != core.PositionModeHedge {
		return fmt.Errorf("hedge engine requires position mode %q, got %q",
			core.PositionModeHedge, e.cfg.Exchange.PositionMode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return fmt.Errorf("hedge engine already started (state %s)", e.state)
	}

	ticker, err := e.feeder.Ticker(ctx, e.pair)
	if err != nil {
		return fmt.Errorf("hedge start: %w", err)
	}
	price := ticker.Last

	account, err := e.broker.Account(ctx)
	if err != nil {
		return fmt.Errorf("hedge start: %w", err)
	}
	// Margin already locked in adopted legs still belongs to the band,
	// so capital is the full quote balance, not just the free part.
	_, quote := account.Balance(exchange.SplitAssetQuote(e.pair))
	e.capital = quote.Total()
	if e.capital <= 0 {
		return fmt.Errorf("hedge start: no %s margin", e.pair)
	}

	leverage := float64(e.cfg.Exchange.Leverage)
	if leverage < 1 {
		leverage = 1
	}
	baseNotional := e.cfg.Hedge.BasePositionRatio * e.capital / 2 * leverage
	e.longNotional = baseNotional
	e.shortNotional = baseNotional

	if err := e.adoptExistingLegs(ctx, price); err != nil {
		return err
	}

	if err := e.topUpLeg(ctx, core.PositionSideLong, price); err != nil {
		return err
	}
	if err := e.topUpLeg(ctx, core.PositionSideShort, price); err != nil {
		return err
	}

	e.ref = price
	e.state = StateActive
	e.log.Infof("[HEDGE] started %s ref=%.4f long=%.6f short=%.6f",
		e.pair, e.ref, e.long.qty, e.short.qty)

	return nil
}

// adoptExistingLegs folds exchange-reported legs into the local ledger
// so a restart never doubles exposure
func (e *Engine) adoptExistingLegs(ctx context.Context, price float64) error {
	snapshots, err := e.broker.Positions(ctx, e.pair)
	if err != nil {
		return fmt.Errorf("hedge start: %w", err)
	}

	for _, snapshot := range snapshots {
		if snapshot.Amount <= 0 {
			continue
		}
		entry := snapshot.EntryPrice
		if entry <= 0 {
			entry = price
		}
		switch snapshot.Side {
		case core.PositionSideLong:
			e.long = leg{qty: snapshot.Amount, entry: entry}
		case core.PositionSideShort:
			e.short = leg{qty: snapshot.Amount, entry: entry}
		}
		e.log.Infof("[HEDGE] adopted %s leg %.6f @ %.4f", snapshot.Side, snapshot.Amount, entry)
	}

	return nil
}

// topUpLeg opens the missing quantity between a leg and its notional
// target
func (e *Engine) topUpLeg(ctx context.Context, side core.PositionSide, price float64) error {
	target := e.longNotional / price
	current := &e.long
	orderSide := core.SideTypeBuy
	if side == core.PositionSideShort {
		target = e.shortNotional / price
		current = &e.short
		orderSide = core.SideTypeSell
	}

	missing := target - current.qty
	if missing <= 0 {
		return nil
	}

	order, err := e.broker.CreateOrderMarket(ctx, orderSide, e.pair, missing, false)
	if err != nil {
		return fmt.Errorf("hedge open %s: %w", side, err)
	}
	current.add(order.Quantity, order.Price)

	return nil
}

// Pause suspends rebalancing while keeping both legs open
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateActive {
		e.state = StatePaused
		e.log.Infof("[HEDGE] paused %s", e.pair)
	}
}

// Resume re-enables rebalancing after a pause
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePaused {
		e.state = StateActive
		e.log.Infof("[HEDGE] resumed %s", e.pair)
	}
}

// Stop closes both legs and retires the engine
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive && e.state != StatePaused {
		return nil
	}
	return e.exitLocked(ctx, ReasonStop)
}

// OnCandle feeds one candle into the engine. Incomplete candles are
// ignored; closed candles update the volatility estimate and drive the
// exit checks and the band trigger.
func (e *Engine) OnCandle(ctx context.Context, candle core.Candle) error {
	if !candle.Complete || candle.Pair != e.pair {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.observeVolatility(candle.Close)

	if e.state != StateActive {
		return nil
	}

	price := candle.Close
	if reason, exit := e.exitConditionLocked(price); exit {
		return e.exitLocked(ctx, reason)
	}

	mes := e.cfg.EffectiveMES()
	deviation := (price - e.ref) / e.ref
	if math.Abs(deviation) < mes {
		return nil
	}

	return e.rebalanceLocked(ctx, price, deviation > 0)
}

// observeVolatility maintains an exponentially weighted estimate of the
// absolute per-candle return
func (e *Engine) observeVolatility(close float64) {
	if e.prevClose > 0 {
		ret := math.Abs(close-e.prevClose) / e.prevClose
		eta := e.cfg.Hedge.ExitEta
		if e.volSamples == 0 {
			e.vol = ret
		} else {
			e.vol = (1-eta)*e.vol + eta*ret
		}
		e.volSamples++
	}
	e.prevClose = close
}

// exitConditionLocked reports whether the engine should wind down.
// The band only pays when price oscillates more than the fee-derived
// step, so a volatility estimate stuck below a fraction of the step
// means every future crossing would be eaten by fees. The risk cap
// bounds the combined unrealised loss of both legs.
func (e *Engine) exitConditionLocked(price float64) (string, bool) {
	mes := e.cfg.EffectiveMES()

	if e.volSamples >= volWarmupSamples && e.vol < e.cfg.Hedge.ExitMESRatio*mes {
		return ReasonLowVolatility, true
	}

	if riskCap := e.cfg.Hedge.RiskCapitalCap; riskCap > 0 {
		unrealized := e.long.qty*(price-e.long.entry) + e.short.qty*(e.short.entry-price)
		if unrealized <= -riskCap*e.capital {
			return ReasonRiskCapitalCap, true
		}
	}

	return "", false
}

// rebalanceLocked realises the winning leg and re-anchors both legs at
// the current price. Profit is split per the alpha setting: alpha flows
// into the losing leg's notional as a reduction, the remainder is added
// half to each side. The losing leg is adjusted with one netted order.
func (e *Engine) rebalanceLocked(ctx context.Context, price float64, upswing bool) error {
	winner, loser := &e.long, &e.short
	winnerSide, loserSide := core.PositionSideLong, core.PositionSideShort
	winnerNotional, loserNotional := &e.longNotional, &e.shortNotional
	if !upswing {
		winner, loser = &e.short, &e.long
		winnerSide, loserSide = core.PositionSideShort, core.PositionSideLong
		winnerNotional, loserNotional = &e.shortNotional, &e.longNotional
	}

	if winner.qty <= 0 {
		return nil
	}

	gross := (price - winner.entry) * winner.qty * winnerSide.Sign()
	net := gross - price*winner.qty*e.cfg.Exchange.TakerFee

	threshold := math.Max(e.cfg.Hedge.MinProfitUSDT,
		winner.qty*price*e.cfg.Exchange.TakerFee*e.cfg.Hedge.MinRebalanceProfitMultiplier)
	if net < threshold {
		e.log.Debugf("[HEDGE] %s band crossed but net %.4f below threshold %.4f",
			e.pair, net, threshold)
		return nil
	}

	closeSide := core.SideTypeSell
	openSide := core.SideTypeBuy
	if winnerSide == core.PositionSideShort {
		closeSide, openSide = core.SideTypeBuy, core.SideTypeSell
	}

	// Realise the winner.
	closed, err := e.broker.CreateOrderMarket(ctx, closeSide, e.pair, winner.qty, true)
	if err != nil {
		return fmt.Errorf("hedge rebalance close %s: %w", winnerSide, err)
	}
	winner.reduce(closed.Quantity)

	alpha := e.cfg.Hedge.Alpha
	*winnerNotional += (1 - alpha) * net / 2
	*loserNotional = math.Max(0, *loserNotional+(1-alpha)*net/2-alpha*net)

	// Reopen the winner at its new target.
	reopenQty := *winnerNotional / price
	if reopenQty > 0 {
		order, err := e.broker.CreateOrderMarket(ctx, openSide, e.pair, reopenQty, false)
		if err != nil {
			return fmt.Errorf("hedge rebalance reopen %s: %w", winnerSide, err)
		}
		winner.add(order.Quantity, order.Price)
	}

	// Net adjustment of the loser toward its new target.
	if err := e.adjustLegLocked(ctx, loser, loserSide, *loserNotional/price, price); err != nil {
		return err
	}

	previous := e.ref
	e.ref = price
	e.log.Infof("[HEDGE] rebalanced %s ref %.4f -> %.4f net=%.4f long=%.6f short=%.6f",
		e.pair, previous, e.ref, net, e.long.qty, e.short.qty)

	return nil
}

// adjustLegLocked moves a leg to its target quantity with a single
// reduce or add order
func (e *Engine) adjustLegLocked(ctx context.Context, l *leg, side core.PositionSide, target, price float64) error {
	delta := target - l.qty
	if math.Abs(delta)*price < e.cfg.Hedge.MinProfitUSDT {
		return nil
	}

	if delta > 0 {
		orderSide := core.SideTypeBuy
		if side == core.PositionSideShort {
			orderSide = core.SideTypeSell
		}
		order, err := e.broker.CreateOrderMarket(ctx, orderSide, e.pair, delta, false)
		if err != nil {
			return fmt.Errorf("hedge adjust %s: %w", side, err)
		}
		l.add(order.Quantity, order.Price)
		return nil
	}

	reduceQty := math.Min(-delta, l.qty)
	if reduceQty <= 0 {
		return nil
	}
	orderSide := core.SideTypeSell
	if side == core.PositionSideShort {
		orderSide = core.SideTypeBuy
	}
	order, err := e.broker.CreateOrderMarket(ctx, orderSide, e.pair, reduceQty, true)
	if err != nil {
		return fmt.Errorf("hedge adjust %s: %w", side, err)
	}
	l.reduce(order.Quantity)

	return nil
}

// exitLocked closes both legs and retires the engine
func (e *Engine) exitLocked(ctx context.Context, reason string) error {
	now := e.clock()

	if e.long.qty > 0 {
		order, err := e.broker.CreateOrderMarket(ctx, core.SideTypeSell, e.pair, e.long.qty, true)
		if err != nil {
			return fmt.Errorf("hedge exit long: %w", err)
		}
		e.publishClosed(now, core.PositionSideLong, e.long, order, reason)
		e.long = leg{}
	}
	if e.short.qty > 0 {
		order, err := e.broker.CreateOrderMarket(ctx, core.SideTypeBuy, e.pair, e.short.qty, true)
		if err != nil {
			return fmt.Errorf("hedge exit short: %w", err)
		}
		e.publishClosed(now, core.PositionSideShort, e.short, order, reason)
		e.short = leg{}
	}

	e.state = StateExited
	e.log.Infof("[HEDGE] exited %s (%s)", e.pair, reason)

	return nil
}

func (e *Engine) publishClosed(now time.Time, side core.PositionSide, l leg, order core.Order, reason string) {
	if e.publish == nil {
		return
	}

	pnl := (order.Price - l.entry) * l.qty * side.Sign()
	pnlPct := 0.0
	if l.entry > 0 {
		pnlPct = (order.Price - l.entry) / l.entry * side.Sign()
	}

	e.publish(core.PositionClosed{
		Time: now,
		Position: core.Position{
			Pair:       e.pair,
			Side:       side,
			Amount:     l.qty,
			EntryPrice: l.entry,
		},
		PnL:    pnl,
		PnLPct: pnlPct,
		Reason: reason,
	})
}
