package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quorumtrade/quorum/core"
)

// ---------------------
// Errors
// ---------------------

var (
	ErrPostOnlyWouldTake    = errors.New("post-only order would take liquidity")
	ErrNoPositionToReduce   = errors.New("no position to reduce")
	ErrOppositePositionOpen = errors.New("opposite position open in one-way mode")
	ErrNoMarketData         = errors.New("no market data for pair")
)

// ---------------------
// Types
// ---------------------

// AssetValue represents the value of the wallet at a specific time
type AssetValue struct {
	Time  time.Time
	Value float64
}

// paperPosition is one leg of simulated exposure
type paperPosition struct {
	amount     float64
	entryPrice float64
	updatedAt  time.Time
}

// PaperWallet simulates a futures account: a single margin balance in the
// quote currency, per-pair leverage, and long/short position legs. In
// hedge mode both legs can be open at once; in one-way mode opening
// against an existing leg is rejected. Orders fill against the candle
// stream, so the wallet must be subscribed to the same feed the bot
// consumes.
type PaperWallet struct {
	mu sync.RWMutex

	baseCoin       string
	takerFee       float64
	makerFee       float64
	initialBalance float64
	balance        float64
	realized       float64
	counter        atomic.Int64
	feeder         core.Feeder
	log            core.Logger

	positionMode core.PositionMode
	marginMode   core.MarginMode
	leverage     map[string]int

	positions map[string]map[core.PositionSide]*paperPosition
	orders    []core.Order

	lastCandle  map[string]core.Candle
	firstCandle map[string]core.Candle
	volume      map[string]float64

	equityValues []AssetValue
}

// PaperWalletOption defines an option function to configure PaperWallet
type PaperWalletOption func(*PaperWallet)

// ---------------------
// Configuration Options
// ---------------------

// WithPaperBalance sets the starting margin balance
func WithPaperBalance(amount float64) PaperWalletOption {
	return func(wallet *PaperWallet) {
		wallet.balance = amount
	}
}

// WithPaperFee configures the wallet fees
func WithPaperFee(maker, taker float64) PaperWalletOption {
	return func(wallet *PaperWallet) {
		wallet.makerFee = maker
		wallet.takerFee = taker
	}
}

// WithDataFeed configures the data provider
func WithDataFeed(feeder core.Feeder) PaperWalletOption {
	return func(wallet *PaperWallet) {
		wallet.feeder = feeder
	}
}

// WithPaperLeverage presets the leverage for a pair
func WithPaperLeverage(pair string, leverage int) PaperWalletOption {
	return func(wallet *PaperWallet) {
		if leverage > 0 {
			wallet.leverage[pair] = leverage
		}
	}
}

// ---------------------
// Constructor
// ---------------------

// NewPaperWallet creates a new simulated wallet
func NewPaperWallet(baseCoin string, log core.Logger, options ...PaperWalletOption) *PaperWallet {
	wallet := PaperWallet{
		baseCoin:     baseCoin,
		log:          log,
		positionMode: core.PositionModeOneWay,
		marginMode:   core.MarginModeCross,
		leverage:     make(map[string]int),
		positions:    make(map[string]map[core.PositionSide]*paperPosition),
		orders:       make([]core.Order, 0),
		lastCandle:   make(map[string]core.Candle),
		firstCandle:  make(map[string]core.Candle),
		volume:       make(map[string]float64),
		equityValues: make([]AssetValue, 0),
	}

	for _, option := range options {
		option(&wallet)
	}

	wallet.initialBalance = wallet.balance

	log.Info("Using paper wallet")
	log.Infof("Initial balance = %f %s", wallet.initialBalance, wallet.baseCoin)

	return &wallet
}

// ---------------------
// Basic Methods
// ---------------------

// ID generates a unique ID for orders
func (p *PaperWallet) ID() int64 {
	return p.counter.Add(1)
}

// AssetsInfo returns permissive market limits for simulation
func (p *PaperWallet) AssetsInfo(pair string) (core.AssetInfo, error) {
	asset, quote := SplitAssetQuote(pair)
	return core.AssetInfo{
		BaseAsset:          asset,
		QuoteAsset:         quote,
		MaxPrice:           math.MaxFloat64,
		MaxQuantity:        math.MaxFloat64,
		StepSize:           0.00000001,
		TickSize:           0.00000001,
		QuotePrecision:     8,
		BaseAssetPrecision: 8,
	}, nil
}

// ---------------------
// Balance and Equity
// ---------------------

// Balance returns the current margin balance
func (p *PaperWallet) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

// Equity returns the balance plus unrealized profit across all legs
func (p *PaperWallet) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityLocked()
}

// EquityValues returns the wallet's value history
func (p *PaperWallet) EquityValues() []AssetValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityValues
}

func (p *PaperWallet) equityLocked() float64 {
	total := p.balance
	for pair, legs := range p.positions {
		mark := p.lastCandle[pair].Close
		if mark == 0 {
			continue
		}
		for side, pos := range legs {
			total += (mark - pos.entryPrice) * pos.amount * side.Sign()
		}
	}
	return total
}

// usedMarginLocked is the initial margin committed to open legs
func (p *PaperWallet) usedMarginLocked() float64 {
	var used float64
	for pair, legs := range p.positions {
		lev := float64(p.leverageForLocked(pair))
		for _, pos := range legs {
			used += pos.entryPrice * pos.amount / lev
		}
	}
	return used
}

func (p *PaperWallet) leverageForLocked(pair string) int {
	if lev, ok := p.leverage[pair]; ok && lev > 0 {
		return lev
	}
	return 1
}

// ---------------------
// Performance Analysis
// ---------------------

// MaxDrawdown returns the deepest relative fall of the equity curve from
// a previous peak, with the times the fall started and bottomed out
func (p *PaperWallet) MaxDrawdown() (float64, time.Time, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxDrawdownLocked()
}

func (p *PaperWallet) maxDrawdownLocked() (float64, time.Time, time.Time) {
	if len(p.equityValues) < 1 {
		return 0, time.Time{}, time.Time{}
	}

	drawdown := 0.0
	peak := p.equityValues[0].Value
	var start, end time.Time

	for _, v := range p.equityValues {
		if v.Value > peak {
			peak = v.Value
			start = v.Time
		}
		if peak > 0 {
			if dd := (v.Value - peak) / peak; dd < drawdown {
				drawdown = dd
				end = v.Time
			}
		}
	}
	return drawdown, start, end
}

// Summary prints a summary of the wallet
func (p *PaperWallet) Summary() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	fmt.Println("----- FINAL WALLET -----")
	for pair, legs := range p.positions {
		mark := p.lastCandle[pair].Close
		for side, pos := range legs {
			unrealized := (mark - pos.entryPrice) * pos.amount * side.Sign()
			fmt.Printf("%s %s %.6f @ %.4f (unrealized %.4f %s)\n",
				pair, side, pos.amount, pos.entryPrice, unrealized, p.baseCoin)
		}
	}

	equity := p.equityLocked()
	profit := equity - p.initialBalance
	maxDrawDown, _, _ := p.maxDrawdownLocked()

	fmt.Println()
	fmt.Println("----- RETURNS -----")
	fmt.Printf("START BALANCE   = %.2f %s\n", p.initialBalance, p.baseCoin)
	fmt.Printf("FINAL EQUITY    = %.2f %s\n", equity, p.baseCoin)
	fmt.Printf("REALIZED PNL    = %.4f %s\n", p.realized, p.baseCoin)
	if p.initialBalance > 0 {
		fmt.Printf("NET PROFIT      = %.4f %s (%.2f%%)\n", profit, p.baseCoin, profit/p.initialBalance*100)
	}
	fmt.Println()

	fmt.Println("------ RISK -------")
	fmt.Printf("MAX DRAWDOWN = %.2f %%\n", maxDrawDown*100)
	fmt.Println()

	fmt.Println("------ VOLUME -----")
	var volume float64
	for pair, vol := range p.volume {
		volume += vol
		fmt.Printf("%s         = %.2f %s\n", pair, vol, p.baseCoin)
	}
	fmt.Printf("TOTAL           = %.2f %s\n", volume, p.baseCoin)
	fmt.Println("-------------------")
}

// ---------------------
// Candle Processing
// ---------------------

// OnCandle matches resting orders against a new candle and records the
// equity curve on closed candles
func (p *PaperWallet) OnCandle(candle core.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastCandle[candle.Pair] = candle
	if _, ok := p.firstCandle[candle.Pair]; !ok {
		p.firstCandle[candle.Pair] = candle
	}

	for i := range p.orders {
		order := &p.orders[i]
		if order.Pair != candle.Pair || order.Status != core.OrderStatusTypeNew {
			continue
		}

		touched := (order.Side == core.SideTypeBuy && candle.Low <= order.Price) ||
			(order.Side == core.SideTypeSell && candle.High >= order.Price)
		if !touched {
			continue
		}

		if err := p.fillLocked(order, order.Price, p.makerFee, candle.Time); err != nil {
			order.Status = core.OrderStatusTypeRejected
			order.UpdatedAt = candle.Time
			p.log.WithError(err).Warnf("paper wallet rejected resting order %d", order.ExchangeID)
			continue
		}
		order.Status = core.OrderStatusTypeFilled
		order.UpdatedAt = candle.Time
	}

	if candle.Complete {
		p.equityValues = append(p.equityValues, AssetValue{
			Time:  candle.Time,
			Value: p.equityLocked(),
		})
	}
}

// ---------------------
// Fill Engine
// ---------------------

// targetLeg resolves which position leg an order acts on. Entries open
// their own side; reduce-only orders act on the opposite side, matching
// futures venue semantics.
func targetLeg(side core.SideType, reduceOnly bool) core.PositionSide {
	if side == core.SideTypeBuy {
		if reduceOnly {
			return core.PositionSideShort
		}
		return core.PositionSideLong
	}
	if reduceOnly {
		return core.PositionSideLong
	}
	return core.PositionSideShort
}

// fillLocked applies one fill to the wallet. Validation happens before
// any mutation so a rejected fill leaves the wallet untouched.
func (p *PaperWallet) fillLocked(order *core.Order, price, feeRate float64, now time.Time) error {
	pair := order.Pair
	leg := targetLeg(order.Side, order.ReduceOnly)
	qty := order.Quantity
	fee := price * qty * feeRate
	_, quote := SplitAssetQuote(pair)

	if order.ReduceOnly {
		pos := p.positions[pair][leg]
		if pos == nil || pos.amount <= 0 {
			return &OrderError{Err: ErrNoPositionToReduce, Pair: pair, Quantity: qty}
		}
		if qty > pos.amount {
			qty = pos.amount
			order.Quantity = qty
			fee = price * qty * feeRate
		}

		pnl := (price - pos.entryPrice) * qty * leg.Sign()
		p.balance += pnl - fee
		p.realized += pnl

		order.RefPrice = pos.entryPrice
		order.ProfitValue = pnl
		if pos.entryPrice > 0 {
			order.Profit = pnl / (pos.entryPrice * qty)
		}

		pos.amount -= qty
		pos.updatedAt = now
		if pos.amount <= 1e-12 {
			delete(p.positions[pair], leg)
		}

		p.log.Infof("PROFIT = %.4f %s (%.2f %%)", pnl, quote, order.Profit*100)
	} else {
		if p.positionMode == core.PositionModeOneWay {
			if opp := p.positions[pair][leg.Inverse()]; opp != nil && opp.amount > 0 {
				return &OrderError{Err: ErrOppositePositionOpen, Pair: pair, Quantity: qty}
			}
		}

		required := price * qty / float64(p.leverageForLocked(pair))
		if p.balance-p.usedMarginLocked()-fee < required {
			return &OrderError{Err: ErrInsufficientFunds, Pair: pair, Quantity: qty}
		}

		p.balance -= fee

		if p.positions[pair] == nil {
			p.positions[pair] = make(map[core.PositionSide]*paperPosition)
		}
		pos := p.positions[pair][leg]
		if pos == nil {
			p.positions[pair][leg] = &paperPosition{amount: qty, entryPrice: price, updatedAt: now}
		} else {
			positionValue := pos.entryPrice * pos.amount
			pos.entryPrice = (positionValue + price*qty) / (pos.amount + qty)
			pos.amount += qty
			pos.updatedAt = now
		}
	}

	p.volume[pair] += price * qty
	return nil
}

// ---------------------
// Account Management
// ---------------------

// Account returns the margin balance split into free and committed margin
func (p *PaperWallet) Account(_ context.Context) (core.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	used := p.usedMarginLocked()
	return core.NewAccount([]core.Balance{{
		Asset: p.baseCoin,
		Free:  p.balance - used,
		Lock:  used,
	}})
}

// Positions returns exchange-shaped snapshots of the open legs
func (p *PaperWallet) Positions(_ context.Context, pair string) ([]core.PositionSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	legs := p.positions[pair]
	if len(legs) == 0 {
		return nil, nil
	}

	mark := p.lastCandle[pair].Close
	snapshots := make([]core.PositionSnapshot, 0, len(legs))
	for side, pos := range legs {
		snapshots = append(snapshots, core.PositionSnapshot{
			Pair:          pair,
			Side:          side,
			Amount:        pos.amount,
			EntryPrice:    pos.entryPrice,
			MarkPrice:     mark,
			Leverage:      p.leverageForLocked(pair),
			UnrealizedPnL: (mark - pos.entryPrice) * pos.amount * side.Sign(),
			UpdatedAt:     pos.updatedAt,
		})
	}
	return snapshots, nil
}

// SetLeverage sets the leverage used for margin checks on a pair
func (p *PaperWallet) SetLeverage(_ context.Context, pair string, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("invalid leverage %d", leverage)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[pair] = leverage
	return nil
}

// SetMarginMode records the margin mode; the simulation is cross-margin
// either way
func (p *PaperWallet) SetMarginMode(_ context.Context, _ string, mode core.MarginMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marginMode = mode
	return nil
}

// SetPositionMode switches between one-way and hedge position handling
func (p *PaperWallet) SetPositionMode(_ context.Context, mode core.PositionMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionMode = mode
	return nil
}

// ---------------------
// Order Management
// ---------------------

// CreateOrderMarket fills immediately at the last candle close with the
// taker fee
func (p *PaperWallet) CreateOrderMarket(_ context.Context, side core.SideType, pair string, size float64, reduceOnly bool) (core.Order, error) {
	if size <= 0 {
		return core.Order{}, ErrInvalidQuantity
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.lastCandle[pair]
	if last.Close == 0 {
		return core.Order{}, &OrderError{Err: ErrNoMarketData, Pair: pair, Quantity: size}
	}

	order := core.Order{
		ExchangeID: p.ID(),
		CreatedAt:  last.Time,
		UpdatedAt:  last.Time,
		Pair:       pair,
		Side:       side,
		Type:       core.OrderTypeMarket,
		Status:     core.OrderStatusTypeFilled,
		Price:      last.Close,
		Quantity:   size,
		ReduceOnly: reduceOnly,
	}

	if err := p.fillLocked(&order, last.Close, p.takerFee, last.Time); err != nil {
		return core.Order{}, err
	}

	p.orders = append(p.orders, order)
	return order, nil
}

// CreateOrderLimit rests an order that fills with the maker fee when a
// candle touches its price. Post-only orders that would cross the book
// immediately are rejected.
func (p *PaperWallet) CreateOrderLimit(_ context.Context, side core.SideType, pair string, size, limit float64, reduceOnly, postOnly bool) (core.Order, error) {
	if size <= 0 {
		return core.Order{}, ErrInvalidQuantity
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.lastCandle[pair]
	if last.Close == 0 {
		return core.Order{}, &OrderError{Err: ErrNoMarketData, Pair: pair, Quantity: size}
	}

	if postOnly {
		crosses := (side == core.SideTypeBuy && limit >= last.Close) ||
			(side == core.SideTypeSell && limit <= last.Close)
		if crosses {
			return core.Order{}, &OrderError{Err: ErrPostOnlyWouldTake, Pair: pair, Quantity: size}
		}
	}

	orderType := core.OrderTypeLimit
	if postOnly {
		orderType = core.OrderTypeLimitMaker
	}

	order := core.Order{
		ExchangeID: p.ID(),
		CreatedAt:  last.Time,
		UpdatedAt:  last.Time,
		Pair:       pair,
		Side:       side,
		Type:       orderType,
		Status:     core.OrderStatusTypeNew,
		Price:      limit,
		Quantity:   size,
		ReduceOnly: reduceOnly,
	}

	p.orders = append(p.orders, order)
	return order, nil
}

// Cancel cancels a resting order
func (p *PaperWallet) Cancel(_ context.Context, order core.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, o := range p.orders {
		if o.ExchangeID != order.ExchangeID {
			continue
		}
		if !o.Status.Open() {
			return fmt.Errorf("order %d is %s", o.ExchangeID, o.Status)
		}
		p.orders[i].Status = core.OrderStatusTypeCanceled
		p.orders[i].UpdatedAt = p.lastCandle[o.Pair].Time
		return nil
	}

	return errors.New("order not found")
}

// Order returns a specific order by its exchange id
func (p *PaperWallet) Order(_ context.Context, _ string, id int64) (core.Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, order := range p.orders {
		if order.ExchangeID == id {
			return order, nil
		}
	}

	return core.Order{}, errors.New("order not found")
}

// ---------------------
// Data Feed Methods
// ---------------------

// Ticker delegates to the configured feeder
func (p *PaperWallet) Ticker(ctx context.Context, pair string) (core.Ticker, error) {
	return p.feeder.Ticker(ctx, pair)
}

// OrderBook delegates to the configured feeder
func (p *PaperWallet) OrderBook(ctx context.Context, pair string, depth int) (core.OrderBook, error) {
	return p.feeder.OrderBook(ctx, pair, depth)
}

// LastQuote returns the last quote of a pair
func (p *PaperWallet) LastQuote(ctx context.Context, pair string) (float64, error) {
	return p.feeder.LastQuote(ctx, pair)
}

// CandlesByPeriod returns candles within a period
func (p *PaperWallet) CandlesByPeriod(ctx context.Context, pair, period string,
	start, end time.Time) ([]core.Candle, error) {
	return p.feeder.CandlesByPeriod(ctx, pair, period, start, end)
}

// CandlesByLimit returns a limited number of candles
func (p *PaperWallet) CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]core.Candle, error) {
	return p.feeder.CandlesByLimit(ctx, pair, period, limit)
}

// CandlesSubscription returns a channel to receive candles
func (p *PaperWallet) CandlesSubscription(ctx context.Context, pair, timeframe string) (chan core.Candle, chan error) {
	return p.feeder.CandlesSubscription(ctx, pair, timeframe)
}
