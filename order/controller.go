package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/exchange"
)

// ErrMakerTimeout reports a maker order that expired unfilled with
// market fallback disabled
var ErrMakerTimeout = errors.New("maker order expired before filling")

// Status represents the current state of the order controller
type Status string

// Available controller statuses
const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Controller is the guarded gateway between decision logic and the
// exchange. Every order passes through it: orders are persisted, fills
// are folded into per-leg ledgers and trade summaries, and working
// orders are reconciled against exchange truth on a ticker. Order
// placement is refused while the backoff guard reports an open pause
// window; cancels and reads are never gated.
type Controller struct {
	exchange       core.Exchange
	storage        core.OrderStorage
	orderFeed      *Feed
	guard          *exchange.BackoffController
	makerCfg       core.MakerConfig
	log            core.Logger
	clock          func() time.Time
	mu             sync.Mutex
	Results        map[string]*TradeSummary
	legs           map[string]map[core.PositionSide]*ledgerPosition
	tickerInterval time.Duration
	finish         chan bool
	status         Status
}

// Option configures optional controller behavior
type Option func(*Controller)

// WithBackoffGuard wires a gateway backoff controller; every exchange
// call feeds it and order placement pauses while it reports a window
func WithBackoffGuard(guard *exchange.BackoffController) Option {
	return func(c *Controller) { c.guard = guard }
}

// WithMakerOrders enables the post-only entry flow
func WithMakerOrders(cfg core.MakerConfig) Option {
	return func(c *Controller) { c.makerCfg = cfg }
}

// WithTickerInterval overrides the reconciliation interval
func WithTickerInterval(interval time.Duration) Option {
	return func(c *Controller) { c.tickerInterval = interval }
}

// NewController creates a new order controller
func NewController(
	exchange core.Exchange,
	storage core.OrderStorage,
	orderFeed *Feed,
	log core.Logger,
	options ...Option,
) *Controller {
	controller := &Controller{
		exchange:       exchange,
		storage:        storage,
		orderFeed:      orderFeed,
		log:            log,
		clock:          time.Now,
		tickerInterval: time.Second,
		Results:        make(map[string]*TradeSummary),
		legs:           make(map[string]map[core.PositionSide]*ledgerPosition),
		finish:         make(chan bool),
	}

	for _, option := range options {
		option(controller)
	}

	return controller
}

// Status returns the current controller status
func (c *Controller) Status() Status {
	return c.status
}

// Start begins background reconciliation of working orders
func (c *Controller) Start(ctx context.Context) {
	if c.status == StatusRunning {
		return
	}
	c.status = StatusRunning

	go func() {
		ticker := time.NewTicker(c.tickerInterval)
		for {
			select {
			case <-ticker.C:
				c.updateOrders(ctx)
			case <-c.finish:
				ticker.Stop()
				return
			}
		}
	}()

	c.log.Info("Order controller started")
}

// Stop cancels every order still working on the exchange and halts
// reconciliation, so no resting maker order survives a shutdown
func (c *Controller) Stop(ctx context.Context) {
	if c.status != StatusRunning {
		return
	}
	c.status = StatusStopped

	c.cancelWorkingOrders(ctx)
	c.updateOrders(ctx)
	c.finish <- true
	c.log.Info("Order controller stopped")
}

// gate refuses order placement while a backoff window is open
func (c *Controller) gate() error {
	if c.guard == nil {
		return nil
	}
	return c.guard.Ready(c.clock())
}

// observe feeds the outcome of an exchange call to the backoff guard
func (c *Controller) observe(err error) {
	if c.guard == nil {
		return
	}
	if err != nil {
		c.guard.Observe(c.clock(), err)
		return
	}
	c.guard.Success(c.clock())
}

// Account retrieves the current trading account information
func (c *Controller) Account(ctx context.Context) (core.Account, error) {
	account, err := c.exchange.Account(ctx)
	c.observe(err)
	return account, err
}

// Positions retrieves the open position legs for a trading pair
func (c *Controller) Positions(ctx context.Context, pair string) ([]core.PositionSnapshot, error) {
	positions, err := c.exchange.Positions(ctx, pair)
	c.observe(err)
	return positions, err
}

// Order retrieves information about a specific order
func (c *Controller) Order(ctx context.Context, pair string, id int64) (core.Order, error) {
	order, err := c.exchange.Order(ctx, pair, id)
	c.observe(err)
	return order, err
}

// LastQuote retrieves the most recent price for a trading pair
func (c *Controller) LastQuote(ctx context.Context, pair string) (float64, error) {
	quote, err := c.exchange.LastQuote(ctx, pair)
	c.observe(err)
	return quote, err
}

// Ticker retrieves the current best bid and ask for a trading pair
func (c *Controller) Ticker(ctx context.Context, pair string) (core.Ticker, error) {
	ticker, err := c.exchange.Ticker(ctx, pair)
	c.observe(err)
	return ticker, err
}

// OrderBook retrieves the order book for a trading pair
func (c *Controller) OrderBook(ctx context.Context, pair string, depth int) (core.OrderBook, error) {
	book, err := c.exchange.OrderBook(ctx, pair, depth)
	c.observe(err)
	return book, err
}

// SetLeverage sets the leverage for a trading pair
func (c *Controller) SetLeverage(ctx context.Context, pair string, leverage int) error {
	err := c.exchange.SetLeverage(ctx, pair, leverage)
	c.observe(err)
	return err
}

// SetMarginMode sets the margin mode for a trading pair
func (c *Controller) SetMarginMode(ctx context.Context, pair string, mode core.MarginMode) error {
	err := c.exchange.SetMarginMode(ctx, pair, mode)
	c.observe(err)
	return err
}

// SetPositionMode sets the account position mode
func (c *Controller) SetPositionMode(ctx context.Context, mode core.PositionMode) error {
	err := c.exchange.SetPositionMode(ctx, mode)
	c.observe(err)
	return err
}

// CreateOrderMarket creates a market order with a specified size
func (c *Controller) CreateOrderMarket(ctx context.Context, side core.SideType, pair string, size float64, reduceOnly bool) (core.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createOrderMarketLocked(ctx, side, pair, size, reduceOnly)
}

func (c *Controller) createOrderMarketLocked(ctx context.Context, side core.SideType, pair string, size float64, reduceOnly bool) (core.Order, error) {
	if err := c.gate(); err != nil {
		return core.Order{}, err
	}

	c.log.Infof("Creating MARKET %s order for %s", side, pair)
	order, err := c.exchange.CreateOrderMarket(ctx, side, pair, size, reduceOnly)
	c.observe(err)
	if err != nil {
		c.log.Error(err)
		return core.Order{}, err
	}

	if err := c.storage.CreateOrder(ctx, &order); err != nil {
		c.log.Error(err)
		return core.Order{}, err
	}

	c.processTrade(&order)
	go c.orderFeed.Publish(order, true)
	c.log.Infof("[ORDER CREATED] %s", order)
	return order, nil
}

// CreateOrderLimit creates a limit order
func (c *Controller) CreateOrderLimit(ctx context.Context, side core.SideType, pair string, size, limit float64, reduceOnly, postOnly bool) (core.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.gate(); err != nil {
		return core.Order{}, err
	}

	c.log.Infof("Creating LIMIT %s order for %s", side, pair)
	order, err := c.exchange.CreateOrderLimit(ctx, side, pair, size, limit, reduceOnly, postOnly)
	c.observe(err)
	if err != nil {
		c.log.Error(err)
		return core.Order{}, err
	}

	if err := c.storage.CreateOrder(ctx, &order); err != nil {
		c.log.Error(err)
		return core.Order{}, err
	}

	c.processTrade(&order)
	go c.orderFeed.Publish(order, true)
	c.log.Infof("[ORDER CREATED] %s", order)
	return order, nil
}

// CreateOrderMaker places a post-only limit just inside the spread and
// waits up to the configured timeout for a fill. On timeout the resting
// order is cancelled and, when fallback is enabled, the unfilled
// remainder is sent as a market order. The returned order reflects the
// total executed quantity; the individual fills live in storage.
func (c *Controller) CreateOrderMaker(ctx context.Context, side core.SideType, pair string, size float64, reduceOnly bool) (core.Order, error) {
	if !c.makerCfg.Enabled {
		return c.CreateOrderMarket(ctx, side, pair, size, reduceOnly)
	}

	c.mu.Lock()
	if err := c.gate(); err != nil {
		c.mu.Unlock()
		return core.Order{}, err
	}

	ticker, err := c.exchange.Ticker(ctx, pair)
	c.observe(err)
	if err != nil {
		c.mu.Unlock()
		c.log.Error(err)
		return core.Order{}, err
	}

	limit := makerPrice(side, ticker, c.makerCfg.OffsetPct)

	c.log.Infof("Creating MAKER %s order for %s at %v", side, pair, limit)
	order, err := c.exchange.CreateOrderLimit(ctx, side, pair, size, limit, reduceOnly, true)
	c.observe(err)
	if err != nil {
		c.mu.Unlock()
		if c.makerCfg.AutoFallback {
			c.log.WithError(err).Warnf("Maker order for %s not accepted, falling back to market", pair)
			return c.CreateOrderMarket(ctx, side, pair, size, reduceOnly)
		}
		c.log.Error(err)
		return core.Order{}, err
	}

	if err := c.storage.CreateOrder(ctx, &order); err != nil {
		c.mu.Unlock()
		c.log.Error(err)
		return core.Order{}, err
	}
	go c.orderFeed.Publish(order, true)
	c.log.Infof("[ORDER CREATED] %s", order)
	c.mu.Unlock()

	return c.awaitMakerFill(ctx, side, pair, order)
}

// makerPrice places a buy just under the ask and a sell just over the
// bid. When the offset overshoots the spread the price rounds to the
// opposite touch, the nearest level a post-only order can rest at.
func makerPrice(side core.SideType, ticker core.Ticker, offsetPct float64) float64 {
	if side == core.SideTypeBuy {
		price := ticker.Ask * (1 - offsetPct)
		if price < ticker.Bid {
			price = ticker.Bid
		}
		return price
	}

	price := ticker.Bid * (1 + offsetPct)
	if price > ticker.Ask {
		price = ticker.Ask
	}
	return price
}

// awaitMakerFill polls a resting maker order until it fills or the
// timeout elapses
func (c *Controller) awaitMakerFill(ctx context.Context, side core.SideType, pair string, placed core.Order) (core.Order, error) {
	pollEvery := c.makerCfg.Timeout / 10
	if pollEvery < 100*time.Millisecond {
		pollEvery = 100 * time.Millisecond
	}
	if pollEvery > time.Second {
		pollEvery = time.Second
	}

	timeout := time.NewTimer(c.makerCfg.Timeout)
	defer timeout.Stop()
	poll := time.NewTicker(pollEvery)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return core.Order{}, ctx.Err()
		case <-timeout.C:
			return c.resolveMakerTimeout(ctx, side, pair, placed)
		case <-poll.C:
		}

		// The reconciliation loop may have folded the fill already
		if stored, err := c.storedOrder(ctx, placed.ID); err == nil &&
			stored.Status == core.OrderStatusTypeFilled {
			return *stored, nil
		}

		excOrder, err := c.exchange.Order(ctx, pair, placed.ExchangeID)
		c.observe(err)
		if err != nil {
			c.log.WithField("id", placed.ExchangeID).Error("orderController/maker: ", err)
			continue
		}
		if excOrder.Status != core.OrderStatusTypeFilled {
			continue
		}

		c.mu.Lock()
		if stored, err := c.storedOrder(ctx, placed.ID); err == nil &&
			stored.Status == core.OrderStatusTypeFilled {
			c.mu.Unlock()
			return *stored, nil
		}
		excOrder.ID = placed.ID
		if err := c.storage.UpdateOrder(ctx, &excOrder); err != nil {
			c.log.Error(err)
		}
		c.processTrade(&excOrder)
		c.mu.Unlock()

		c.orderFeed.Publish(excOrder, false)
		c.log.Infof("[ORDER %s] %s", excOrder.Status, excOrder)
		return excOrder, nil
	}
}

// resolveMakerTimeout pulls an expired maker order and covers the
// unfilled remainder at market when fallback is enabled
func (c *Controller) resolveMakerTimeout(ctx context.Context, side core.SideType, pair string, placed core.Order) (core.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, err := c.storedOrder(ctx, placed.ID)
	if err != nil {
		return core.Order{}, err
	}
	if stored.Status == core.OrderStatusTypeFilled {
		return *stored, nil
	}

	c.log.Infof("Maker order for %s not filled in %s, cancelling", pair, c.makerCfg.Timeout)
	cancelErr := c.exchange.Cancel(ctx, *stored)
	c.observe(cancelErr)

	final, err := c.exchange.Order(ctx, pair, placed.ExchangeID)
	c.observe(err)
	if err != nil {
		c.log.Error(err)
		stored.Status = core.OrderStatusTypePendingCancel
		if uerr := c.storage.UpdateOrder(ctx, stored); uerr != nil {
			c.log.Error(uerr)
		}
		return core.Order{}, err
	}

	final.ID = placed.ID
	if err := c.storage.UpdateOrder(ctx, &final); err != nil {
		c.log.Error(err)
	}

	// The order can fill during the cancel race
	if final.Status == core.OrderStatusTypeFilled {
		c.processTrade(&final)
		c.orderFeed.Publish(final, false)
		c.log.Infof("[ORDER %s] %s", final.Status, final)
		return final, nil
	}

	// The cancel did not land; leave the order to the reconciliation
	// loop instead of risking a double fill
	if cancelErr != nil && final.Status.Open() {
		c.log.Error(cancelErr)
		return final, cancelErr
	}

	executed := executedQuantity(placed.Quantity, final)
	if executed > 0 {
		// The pulled order still moved size; fold the executed portion
		// into volume and the leg ledger
		fill := final
		fill.Status = core.OrderStatusTypeFilled
		fill.Quantity = executed
		c.processTrade(&fill)
	}
	c.orderFeed.Publish(final, false)

	remaining := placed.Quantity - executed
	if remaining <= 0 {
		return final, nil
	}

	if !c.makerCfg.AutoFallback {
		return final, ErrMakerTimeout
	}

	c.log.Infof("Sending unfilled maker remainder as MARKET %s for %s", side, pair)
	market, err := c.createOrderMarketLocked(ctx, side, pair, remaining, placed.ReduceOnly)
	if err != nil {
		return final, err
	}
	if executed <= 0 {
		return market, nil
	}

	merged := market
	merged.Quantity = executed + market.Quantity
	merged.Price = (final.Price*executed + market.Price*market.Quantity) / merged.Quantity
	return merged, nil
}

// executedQuantity infers how much of a pulled maker order actually
// traded. Adapters report executed quantity once any fill exists; a
// cancelled order still carrying the requested quantity never traded.
func executedQuantity(requested float64, final core.Order) float64 {
	switch final.Status {
	case core.OrderStatusTypeFilled, core.OrderStatusTypePartiallyFilled:
		return final.Quantity
	case core.OrderStatusTypeCanceled:
		if final.Quantity < requested {
			return final.Quantity
		}
	}
	return 0
}

// Cancel cancels an existing order
func (c *Controller) Cancel(ctx context.Context, order core.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked(ctx, order)
}

func (c *Controller) cancelLocked(ctx context.Context, order core.Order) error {
	c.log.Infof("Cancelling order for %s", order.Pair)
	err := c.exchange.Cancel(ctx, order)
	c.observe(err)
	if err != nil {
		return err
	}

	order.Status = core.OrderStatusTypePendingCancel
	if err := c.storage.UpdateOrder(ctx, &order); err != nil {
		c.log.Error(err)
		return err
	}
	c.log.Infof("[ORDER CANCELED] %s", order)
	return nil
}

// cancelWorkingOrders pulls every order still open on the exchange
func (c *Controller) cancelWorkingOrders(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, err := c.storage.Orders(ctx, core.WithStatusIn(
		core.OrderStatusTypeNew,
		core.OrderStatusTypePartiallyFilled,
	))
	if err != nil {
		c.log.Error(err)
		return
	}

	for _, order := range orders {
		if err := c.cancelLocked(ctx, *order); err != nil {
			c.log.WithField("id", order.ExchangeID).Error("orderController/cancel: ", err)
		}
	}
}

// storedOrder fetches one order record by its storage ID
func (c *Controller) storedOrder(ctx context.Context, id int64) (*core.Order, error) {
	orders, err := c.storage.Orders(ctx, func(order core.Order) bool {
		return order.ID == id
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %d not found", id)
	}
	return orders[0], nil
}

// updateOrders checks for status changes in working orders
func (c *Controller) updateOrders(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, err := c.storage.Orders(ctx, core.WithStatusIn(
		core.OrderStatusTypeNew,
		core.OrderStatusTypePartiallyFilled,
		core.OrderStatusTypePendingCancel,
	))
	if err != nil {
		c.log.Error(err)
		return
	}

	var updatedOrders []core.Order
	for _, order := range orders {
		excOrder, err := c.exchange.Order(ctx, order.Pair, order.ExchangeID)
		c.observe(err)
		if err != nil {
			c.log.WithField("id", order.ExchangeID).Error("orderController/get: ", err)
			continue
		}

		// No status change
		if excOrder.Status == order.Status {
			continue
		}

		excOrder.ID = order.ID
		if err := c.storage.UpdateOrder(ctx, &excOrder); err != nil {
			c.log.Error(err)
			continue
		}

		c.log.Infof("[ORDER %s] %s", excOrder.Status, excOrder)
		updatedOrders = append(updatedOrders, excOrder)
	}

	for _, processOrder := range updatedOrders {
		c.processTrade(&processOrder)
		c.orderFeed.Publish(processOrder, false)
	}
}

// processTrade updates the trade summary and leg ledger when an order
// is filled
func (c *Controller) processTrade(order *core.Order) {
	if order.Status != core.OrderStatusTypeFilled {
		return
	}

	if _, ok := c.Results[order.Pair]; !ok {
		c.Results[order.Pair] = &TradeSummary{Pair: order.Pair}
	}

	// Register order volume
	c.Results[order.Pair].Volume += order.Price * order.Quantity

	c.updateLedger(order)
}

// updateLedger folds a fill into the position leg it acts on
func (c *Controller) updateLedger(o *core.Order) {
	leg := legFor(o.Side, o.ReduceOnly)

	if _, ok := c.legs[o.Pair]; !ok {
		c.legs[o.Pair] = make(map[core.PositionSide]*ledgerPosition)
	}

	position, ok := c.legs[o.Pair][leg]
	if !ok {
		// A reduce fill with no tracked leg has nothing to realize
		if o.ReduceOnly {
			return
		}
		c.legs[o.Pair][leg] = &ledgerPosition{
			Side:      leg,
			AvgPrice:  o.Price,
			Quantity:  o.Quantity,
			CreatedAt: o.CreatedAt,
		}
		return
	}

	if !o.ReduceOnly {
		position.increase(o)
		return
	}

	result, finished := position.reduce(o)
	if finished {
		delete(c.legs[o.Pair], leg)
	}
	if result != nil {
		c.recordTradeResult(o.Pair, result)
	}
}

// recordTradeResult updates the trade summary with a new trade result
func (c *Controller) recordTradeResult(pair string, result *TradeResult) {
	summary := c.Results[pair]

	if result.ProfitPercent >= 0 {
		if result.Side == core.PositionSideLong {
			summary.WinLong = append(summary.WinLong, result.ProfitValue)
			summary.WinLongPercent = append(summary.WinLongPercent, result.ProfitPercent)
		} else {
			summary.WinShort = append(summary.WinShort, result.ProfitValue)
			summary.WinShortPercent = append(summary.WinShortPercent, result.ProfitPercent)
		}
	} else {
		if result.Side == core.PositionSideLong {
			summary.LoseLong = append(summary.LoseLong, result.ProfitValue)
			summary.LoseLongPercent = append(summary.LoseLongPercent, result.ProfitPercent)
		} else {
			summary.LoseShort = append(summary.LoseShort, result.ProfitValue)
			summary.LoseShortPercent = append(summary.LoseShortPercent, result.ProfitPercent)
		}
	}

	_, quote := exchange.SplitAssetQuote(pair)
	c.log.Infof("[PROFIT] %.4f %s (%.2f %%)", result.ProfitValue, quote, result.ProfitPercent*100)
	fmt.Println(summary.String())
}
