package quorum

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/exchange"
	"github.com/quorumtrade/quorum/filter"
	"github.com/quorumtrade/quorum/indicator"
	"github.com/quorumtrade/quorum/order"
	"github.com/quorumtrade/quorum/regime"
	"github.com/quorumtrade/quorum/risk"
	"github.com/quorumtrade/quorum/strategy"
)

// BotState is the position of the control loop in its lifecycle.
// Opening and Closing are transient: orders resolve synchronously inside
// a tick, so between ticks the trader is always in one of the other states.
type BotState string

const (
	StateStarting   BotState = "starting"
	StateFlat       BotState = "flat"
	StateOpening    BotState = "opening"
	StateInPosition BotState = "in_position"
	StateClosing    BotState = "closing"
	StatePaused     BotState = "paused"
	StateStopping   BotState = "stopping"
)

const bookDepthLevels = 20

// Trader runs the single-pair trading loop: regime detection, the strategy
// ensemble, the filter pipeline, risk sizing and the position lifecycle.
// Every complete candle drives one tick; partial candles only re-check the
// exit rules of an open position.
type Trader struct {
	cfg     core.Config
	pair    string
	broker  *order.Controller
	guard   *exchange.BackoffController
	publish func(core.Event)
	log     core.Logger
	clock   func() time.Time

	primary *strategy.DataframeManager
	higher  *strategy.DataframeManager

	ensemble *strategy.Ensemble
	detector *regime.Detector
	pipeline *filter.Pipeline
	quality  *filter.QualityGate

	sizer   *risk.Manager
	exits   *risk.ExitEvaluator
	breaker *risk.CircuitBreaker
	metrics *risk.Metrics

	mu         sync.Mutex
	started    bool
	state      BotState
	position   *core.Position
	pendingTag *core.TradeTag

	halted            bool
	consecutiveErrors int
	retryAt           time.Time
}

// NewTrader wires the decision pieces around the order controller. Pass the
// controller as broker so order placement stays behind the backoff guard.
// A nil scorer or advisor leaves the corresponding gate out of the pipeline.
func NewTrader(
	cfg core.Config,
	broker *order.Controller,
	guard *exchange.BackoffController,
	publish func(core.Event),
	log core.Logger,
	strategies []core.Strategy,
	scorer core.Scorer,
	advisor core.Advisor,
	clock func() time.Time,
) *Trader {
	if publish == nil {
		publish = func(core.Event) {}
	}
	if clock == nil {
		clock = time.Now
	}

	breaker := risk.NewCircuitBreaker(cfg.Breakers, log, publish)
	quality := filter.NewQualityGate(cfg.Filters, log)

	gates := []filter.Gate{
		filter.NewBreakerGate(breaker),
		filter.NewDirectionGate(cfg.Filters, log),
		filter.NewTrendGate(log),
		quality,
	}
	if scorer != nil {
		gates = append(gates, filter.NewMLGate(cfg.Plugins, scorer, log))
	}
	if advisor != nil {
		gates = append(gates, filter.NewPolicyGate(cfg.Plugins, advisor, log))
	}

	t := &Trader{
		cfg:      cfg,
		pair:     cfg.Exchange.Pair,
		broker:   broker,
		guard:    guard,
		publish:  publish,
		log:      log,
		clock:    clock,
		primary:  strategy.NewDataframeManager(cfg.Exchange.Pair),
		ensemble: strategy.NewEnsemble(log, cfg.Filters, strategies...),
		detector: regime.NewDetector(log),
		pipeline: filter.NewPipeline(log, gates...),
		quality:  quality,
		sizer:    risk.NewManager(cfg.Risk, cfg.Filters, cfg.Plugins.LLMBounds, log),
		exits:    risk.NewExitEvaluator(cfg.Risk, cfg.Exchange.TakerFee, log),
		breaker:  breaker,
		state:    StateStarting,
	}

	if cfg.Exchange.HigherTimeframe != "" {
		t.higher = strategy.NewDataframeManager(cfg.Exchange.Pair)
	}

	return t
}

// State returns the current control loop state
func (t *Trader) State() BotState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Position returns a copy of the open position, or nil when flat
func (t *Trader) Position() *core.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.position == nil {
		return nil
	}
	clone := *t.position
	return &clone
}

// Metrics exposes the performance counters feeding the adaptive filters
func (t *Trader) Metrics() *risk.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// Breaker exposes the circuit breaker for status reporting
func (t *Trader) Breaker() *risk.CircuitBreaker { return t.breaker }

// WarmupPeriod is the candle history required before the first evaluation
func (t *Trader) WarmupPeriod() int { return t.ensemble.WarmupPeriod() }

// ---------------------------------------------------------------------------
// Startup and recovery
// ---------------------------------------------------------------------------

// Recover queries the exchange for an already open position and adopts it,
// so a restart never orphans or doubles exposure. Unknown entry details are
// filled conservatively: the entry fee assumes taker, price extremes start
// at the current mark and the exit plan is rebuilt from the live entry price.
func (t *Trader) Recover(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	account, err := t.broker.Account(ctx)
	if err != nil {
		return fmt.Errorf("recovery account query: %w", err)
	}
	_, quote := account.Balance(exchange.SplitAssetQuote(t.pair))
	equity := quote.Total()

	now := t.clock()
	t.metrics = risk.NewMetrics(equity, now)
	t.breaker.ObserveEquity(equity, now)

	snapshots, err := t.broker.Positions(ctx, t.pair)
	if err != nil {
		return fmt.Errorf("recovery position query: %w", err)
	}

	for _, snap := range snapshots {
		if snap.Amount <= 0 {
			continue
		}

		price := snap.MarkPrice
		if ticker, err := t.broker.Ticker(ctx, t.pair); err == nil && ticker.Last > 0 {
			price = ticker.Last
		}
		if price <= 0 {
			price = snap.EntryPrice
		}

		leverage := snap.Leverage
		if leverage < 1 {
			leverage = t.cfg.Exchange.Leverage
		}

		stopLoss, takeProfit := t.sizer.ExitPlan("", snap.Side, snap.EntryPrice, 0, leverage, nil)

		position := &core.Position{
			Pair:         t.pair,
			Side:         snap.Side,
			Amount:       snap.Amount,
			EntryPrice:   snap.EntryPrice,
			EntryTime:    now,
			EntryFee:     snap.EntryPrice * snap.Amount * t.cfg.Exchange.TakerFee,
			Leverage:     leverage,
			StopLoss:     stopLoss,
			TakeProfit:   takeProfit,
			HighestPrice: price,
			LowestPrice:  price,
			Strategy:     "recovered",
			Reason:       "adopted on restart",
		}

		t.position = position
		t.state = StateInPosition
		t.log.Infof("[RECOVERY] adopted %s %s position amount=%.6f entry=%.4f stop=%.4f target=%.4f",
			t.pair, snap.Side, snap.Amount, snap.EntryPrice, stopLoss, takeProfit)
		break
	}

	return nil
}

// Start arms the trading loop. Candles seen before Start only warm up the
// dataframes, which lets the bot replay history without trading on it.
func (t *Trader) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.started = true
	if t.state == StateStarting && t.position == nil && t.warmedUpLocked() {
		t.state = StateFlat
	}
	t.log.Infof("[TRADER] started %s state=%s candles=%d warmup=%d",
		t.pair, t.state, t.primary.Dataframe().Len(), t.ensemble.WarmupPeriod())
}

func (t *Trader) warmedUpLocked() bool {
	return t.primary.HasSufficientData(t.ensemble.WarmupPeriod())
}

// ---------------------------------------------------------------------------
// Candle entry points
// ---------------------------------------------------------------------------

// OnHigherCandle feeds the confluence timeframe. Only complete candles
// matter here, the higher view is context rather than a trigger.
func (t *Trader) OnHigherCandle(candle core.Candle) {
	if t.higher == nil || !candle.Complete || candle.Pair != t.pair {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.higher.IsLateCandle(candle) {
		return
	}
	t.higher.OnCandle(candle)
}

// OnPartialCandle re-checks the exit rules of an open position against the
// in-progress candle, so a stop does not have to wait for the close
func (t *Trader) OnPartialCandle(ctx context.Context, candle core.Candle) {
	if candle.Pair != t.pair || candle.Complete {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.primary.OnCandle(candle)

	if !t.started || t.state != StateInPosition || t.position == nil {
		return
	}
	if t.guard != nil && t.guard.Paused(t.clock()) {
		return
	}

	if reason, due := t.exits.Evaluate(t.position, candle.Close, false); due {
		if err := t.closeLocked(ctx, reason, candle.Time); err != nil {
			t.log.Errorf("[TRADER] intra-candle close failed: %v", err)
		}
	}
}

// OnCandle runs one tick of the control loop on a complete candle
func (t *Trader) OnCandle(ctx context.Context, candle core.Candle) {
	if candle.Pair != t.pair || !candle.Complete {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.primary.IsLateCandle(candle) {
		t.log.Warnf("[TRADER] dropped out-of-order candle %s %s", t.pair, candle.Time)
		return
	}
	t.primary.OnCandle(candle)

	if !t.started || t.state == StateStopping {
		return
	}

	if err := t.tickLocked(ctx, candle); err != nil {
		t.tickFailedLocked(err)
	} else {
		t.consecutiveErrors = 0
	}
}

// tickFailedLocked applies the per-iteration error policy: back off a few
// ticks, halt entirely once the failure streak crosses the limit
func (t *Trader) tickFailedLocked(err error) {
	t.consecutiveErrors++
	t.retryAt = t.clock().Add(t.cfg.Breakers.ErrorBackoff)
	t.log.Errorf("[TRADER] tick failed (%d consecutive): %v", t.consecutiveErrors, err)

	limit := t.cfg.Breakers.MaxConsecutiveErrors
	if limit > 0 && t.consecutiveErrors >= limit && !t.halted {
		t.halted = true
		t.log.Errorf("[TRADER] halting after %d consecutive errors, monitoring continues", t.consecutiveErrors)
	}
}

// ---------------------------------------------------------------------------
// The tick
// ---------------------------------------------------------------------------

func (t *Trader) tickLocked(ctx context.Context, candle core.Candle) error {
	now := candle.Time

	if t.clock().Before(t.retryAt) {
		return nil
	}

	if t.state == StateStarting {
		if !t.warmedUpLocked() {
			return nil
		}
		t.state = StateFlat
		t.log.Infof("[TRADER] warmup complete for %s, trading enabled", t.pair)
	}

	// Backoff pauses park the whole loop: while the gateway guard holds,
	// order placement would be rejected anyway
	if t.guard != nil && t.guard.Paused(t.clock()) {
		if t.state != StatePaused {
			t.log.Warnf("[TRADER] paused, gateway in backoff")
			t.state = StatePaused
		}
		return nil
	}
	if t.state == StatePaused {
		if t.halted {
			return nil
		}
		if t.position != nil {
			t.state = StateInPosition
		} else {
			t.state = StateFlat
		}
		t.log.Infof("[TRADER] resumed, state=%s", t.state)
	}

	account, err := t.broker.Account(ctx)
	if err != nil {
		return fmt.Errorf("account query: %w", err)
	}
	_, quote := account.Balance(exchange.SplitAssetQuote(t.pair))
	equity := quote.Total()

	if t.metrics == nil {
		t.metrics = risk.NewMetrics(equity, now)
	}
	t.metrics.Rollover(now, equity)
	t.breaker.ObserveEquity(equity, now)

	ticker, err := t.broker.Ticker(ctx, t.pair)
	if err != nil {
		return fmt.Errorf("ticker query: %w", err)
	}
	t.quality.Observe(ticker)

	if t.cfg.Filters.MaxTickerStaleness > 0 && ticker.Stale(now, t.cfg.Filters.MaxTickerStaleness) {
		t.log.Warnf("[TRADER] stale ticker (%s behind candle), skipping tick", now.Sub(ticker.Time))
		return nil
	}

	switch t.state {
	case StateInPosition:
		return t.manageLocked(ctx, candle)
	case StateFlat:
		if t.halted {
			return nil
		}
		return t.evaluateLocked(ctx, candle, ticker, quote.Free)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Entry path
// ---------------------------------------------------------------------------

func (t *Trader) evaluateLocked(ctx context.Context, candle core.Candle, ticker core.Ticker, balance float64) error {
	view, err := t.viewLocked()
	if err != nil {
		t.log.Debugf("[TRADER] no market view yet: %v", err)
		return nil
	}

	classification := t.detector.Classify(view.Snapshot)
	allowed := regime.AllowedStrategies(classification.Regime)

	signals := t.ensemble.Evaluate(view, allowed)
	aggregated := t.ensemble.Aggregate(signals, view.Snapshot, candle.Time)
	if !aggregated.Side.IsEntry() {
		return nil
	}

	provisional := t.sizeLocked(aggregated, balance, candle.Close, nil)
	tag := core.TradeTag{
		Time:   candle.Time,
		Pair:   t.pair,
		Signal: aggregated,
	}
	if provisional.Quote <= 0 {
		tag.Action = core.TagRejected
		tag.RejectionStage = "sizing"
		t.publish(tag)
		t.log.Infof("[SIGNAL REJECTED] %s %s at sizing", t.pair, aggregated.Side)
		return nil
	}

	book, err := t.broker.OrderBook(ctx, t.pair, bookDepthLevels)
	if err != nil {
		// An unusable book fails the depth check downstream rather than
		// aborting the tick
		t.log.Warnf("[TRADER] order book query failed: %v", err)
		book = core.OrderBook{Pair: t.pair}
	}

	decision := &filter.Decision{
		Pair:       t.pair,
		Signal:     aggregated,
		View:       view,
		Regime:     classification,
		Ticker:     ticker,
		Book:       book,
		OrderSize:  provisional.Quote,
		WinRate:    t.metrics.WinRate(),
		TradeCount: t.metrics.TradeCount(),
		DailyPnL:   t.metrics.DailyPnL(),
	}

	passed := t.pipeline.Run(ctx, decision)
	tag.Gates = decision.Gates
	if !passed {
		tag.Action = core.TagRejected
		tag.RejectionStage = decision.RejectionStage
		t.publish(tag)
		t.log.Infof("[SIGNAL REJECTED] %s %s at %s", t.pair, aggregated.Side, decision.RejectionStage)
		return nil
	}

	final := t.sizeLocked(aggregated, balance, candle.Close, decision.Advice)
	if final.Quote <= 0 {
		tag.Action = core.TagRejected
		tag.RejectionStage = "sizing"
		t.publish(tag)
		return nil
	}

	return t.openLocked(ctx, candle, aggregated, decision, final, tag)
}

func (t *Trader) sizeLocked(signal core.AggregatedSignal, balance, price float64, advice *core.Advice) risk.SizeResult {
	return t.sizer.Size(risk.SizeRequest{
		Balance:       balance,
		Price:         price,
		Leverage:      t.cfg.Exchange.Leverage,
		Side:          signal.Side,
		Strength:      signal.Strength,
		Snapshot:      signal.Snapshot,
		Metrics:       t.metrics,
		Advice:        advice,
		BreakerFactor: t.breaker.SizeFactor(),
	})
}

func (t *Trader) openLocked(
	ctx context.Context,
	candle core.Candle,
	signal core.AggregatedSignal,
	decision *filter.Decision,
	size risk.SizeResult,
	tag core.TradeTag,
) error {
	t.state = StateOpening
	side := signal.Side.OrderSide()

	var (
		ord core.Order
		err error
	)
	if t.cfg.Maker.Enabled {
		ord, err = t.broker.CreateOrderMaker(ctx, side, t.pair, size.Base, false)
	} else {
		ord, err = t.broker.CreateOrderMarket(ctx, side, t.pair, size.Base, false)
	}
	if err != nil {
		t.state = StateFlat
		tag.Action = core.TagRejected
		tag.RejectionStage = "execution"
		t.publish(tag)

		kind := core.KindOf(err)
		if kind == core.ErrKindOrderRejected || kind == core.ErrKindInsufficientBalance {
			t.log.Warnf("[TRADER] open order rejected (%s), staying flat: %v", kind, err)
			return nil
		}
		return fmt.Errorf("open order: %w", err)
	}

	feeRate := t.cfg.Exchange.TakerFee
	if ord.Type == core.OrderTypeLimitMaker {
		feeRate = t.cfg.Exchange.MakerFee
	}

	positionSide := core.PositionSideLong
	if side == core.SideTypeSell {
		positionSide = core.PositionSideShort
	}

	contributor := ""
	if len(signal.Contributors) > 0 {
		contributor = signal.Contributors[0]
	}

	stopLoss, takeProfit := t.sizer.ExitPlan(
		contributor, positionSide, ord.Price, signal.Snapshot.ATR, t.cfg.Exchange.Leverage, decision.Advice)

	position := &core.Position{
		Pair:       t.pair,
		Side:       positionSide,
		Amount:     ord.Quantity,
		EntryPrice: ord.Price,
		EntryTime:  candle.Time,
		EntryFee:   ord.Price * ord.Quantity * feeRate,
		Leverage:   t.cfg.Exchange.Leverage,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Strategy:   contributor,
		Reason:     strings.Join(signal.Contributors, ","),
	}
	position.Track(ord.Price)

	t.position = position
	t.state = StateInPosition

	tag.Action = core.TagOpened
	tag.FillPrice = ord.Price
	t.pendingTag = &tag

	t.publish(core.PositionOpened{Time: candle.Time, Position: *position, Order: ord})
	t.log.Infof("[POSITION OPENED] %s %s amount=%.6f entry=%.4f stop=%.4f target=%.4f kelly=%.2f",
		t.pair, positionSide, ord.Quantity, ord.Price, stopLoss, takeProfit, size.Kelly)

	return nil
}

// ---------------------------------------------------------------------------
// Exit path
// ---------------------------------------------------------------------------

func (t *Trader) manageLocked(ctx context.Context, candle core.Candle) error {
	closeRequested := false

	// The ensemble keeps voting while in a position so reversal signals
	// can request an exit
	if view, err := t.viewLocked(); err == nil {
		signals := t.ensemble.Evaluate(view, regime.AllowedStrategies(t.detector.Classify(view.Snapshot).Regime))
		aggregated := t.ensemble.Aggregate(signals, view.Snapshot, candle.Time)
		switch {
		case aggregated.Side == core.SignalCloseLong && t.position.Side == core.PositionSideLong:
			closeRequested = true
		case aggregated.Side == core.SignalCloseShort && t.position.Side == core.PositionSideShort:
			closeRequested = true
		}
	}

	reason, due := t.exits.Evaluate(t.position, candle.Close, closeRequested)
	if !due {
		return nil
	}
	return t.closeLocked(ctx, reason, candle.Time)
}

func (t *Trader) closeLocked(ctx context.Context, reason risk.ExitReason, now time.Time) error {
	position := t.position
	if position == nil {
		return nil
	}

	t.state = StateClosing
	side := core.SideTypeSell
	if position.Side == core.PositionSideShort {
		side = core.SideTypeBuy
	}

	ord, err := t.broker.CreateOrderMarket(ctx, side, t.pair, position.Amount, true)
	if err != nil {
		t.state = StateInPosition
		return fmt.Errorf("close order (%s): %w", reason, err)
	}

	exitFee := ord.Price * ord.Quantity * t.cfg.Exchange.TakerFee
	pnl := position.GrossProfit(ord.Price) - position.EntryFee - exitFee
	pnlPct := position.ProfitPct(ord.Price)
	holdTime := position.HoldTime(now)

	// A zero balance leaves the daily base untouched if the account query
	// fails right here
	var equity float64
	if account, err := t.broker.Account(ctx); err == nil {
		_, quote := account.Balance(exchange.SplitAssetQuote(t.pair))
		equity = quote.Total()
	}
	t.metrics.RecordTrade(pnl, equity, now)
	t.breaker.OnTradeClosed(t.metrics, now)

	t.publish(core.PositionClosed{
		Time:     now,
		Position: *position,
		PnL:      pnl,
		PnLPct:   pnlPct,
		Reason:   string(reason),
		MFE:      position.MaxProfit,
		MAE:      position.MaxLoss,
		HoldTime: holdTime,
	})

	if t.pendingTag != nil {
		tag := *t.pendingTag
		tag.Action = core.TagClosed
		tag.ExitPrice = ord.Price
		tag.PnL = pnl
		tag.HoldTime = holdTime
		t.publish(tag)
		t.pendingTag = nil
	}

	t.log.Infof("[POSITION CLOSED] %s %s reason=%s entry=%.4f exit=%.4f pnl=%.4f (%.2f%%) held=%s",
		t.pair, position.Side, reason, position.EntryPrice, ord.Price, pnl, pnlPct*100, holdTime)

	t.position = nil
	t.state = StateFlat
	return nil
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

// Shutdown flattens the loop for an orderly stop. With CloseOnStop set the
// open position is closed with a reduce-only market order; otherwise it is
// left on the exchange for the next run to recover, and its pending tag is
// flushed as still open.
func (t *Trader) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateStopping {
		return nil
	}

	var err error
	if t.position != nil {
		if t.cfg.Risk.CloseOnStop {
			err = t.closeLocked(ctx, risk.ExitManual, t.clock())
		} else if t.pendingTag != nil {
			tag := *t.pendingTag
			tag.Action = core.TagOpened
			t.publish(tag)
			t.pendingTag = nil
			t.log.Infof("[TRADER] leaving %s position open for recovery on next start", t.pair)
		}
	}

	t.state = StateStopping
	t.log.Infof("[TRADER] stopped %s", t.pair)
	return err
}

// ---------------------------------------------------------------------------
// Market view
// ---------------------------------------------------------------------------

func (t *Trader) viewLocked() (*core.MarketView, error) {
	df := t.primary.Dataframe()
	snapshot, err := indicator.Build(df)
	if err != nil {
		return nil, err
	}

	view := &core.MarketView{Primary: df, Snapshot: snapshot}

	if t.higher != nil && t.higher.Dataframe().Len() > 0 {
		if higherSnap, err := indicator.Build(t.higher.Dataframe()); err == nil {
			view.Higher = t.higher.Dataframe()
			view.HigherSnapshot = &higherSnap
		}
	}

	return view, nil
}
