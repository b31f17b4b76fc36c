package quorum

import (
	"context"
	"fmt"
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/events"
	"github.com/quorumtrade/quorum/exchange"
	"github.com/quorumtrade/quorum/hedge"
	"github.com/quorumtrade/quorum/order"
	"github.com/quorumtrade/quorum/storage"
	"github.com/quorumtrade/quorum/strategies"
)

const defaultDatabase = "quorum.db"

// Bot assembles the full trading system around one pair: data feed, order
// controller behind the backoff guard, the ensemble trader or the hedge
// engine, storage, and the event feed external consumers subscribe to
type Bot struct {
	cfg      core.Config
	exchange core.Exchange
	storage  core.OrderStorage
	log      core.Logger
	clock    func() time.Time

	orderFeed           *order.Feed
	eventFeed           *events.Feed
	dataFeed            *exchange.DataFeedSubscription
	priorityQueueCandle *core.PriorityQueue

	guard           *exchange.BackoffController
	orderController *order.Controller
	health          *exchange.HealthMonitor
	paperWallet     *exchange.PaperWallet

	trader        *Trader
	hedger        *hedge.Engine
	hedgerStarted bool

	strategies []core.Strategy
	scorer     core.Scorer
	advisor    core.Advisor

	candleSubscribers []exchange.DataFeedConsumer
	orderSubscribers  []order.FeedConsumer

	backtest bool
}

// NewBot creates a bot instance from a validated config and an exchange
// connection. With Hedge.Enabled the band-limited hedge engine replaces
// the ensemble trader; everything else stays the same.
func NewBot(cfg core.Config, exch core.Exchange, options ...Option) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if asset, quote := exchange.SplitAssetQuote(cfg.Exchange.Pair); asset == "" || quote == "" {
		return nil, fmt.Errorf("invalid pair: %s", cfg.Exchange.Pair)
	}

	bot := &Bot{
		cfg:                 cfg,
		exchange:            exch,
		log:                 DefaultLog,
		clock:               time.Now,
		orderFeed:           order.NewOrderFeed(),
		eventFeed:           events.NewFeed(),
		priorityQueueCandle: core.NewPriorityQueue(nil),
	}

	for _, option := range options {
		option(bot)
	}

	if len(bot.strategies) == 0 {
		bot.strategies = strategies.All()
	}

	if bot.storage == nil {
		var err error
		bot.storage, err = storage.NewFromFile(defaultDatabase)
		if err != nil {
			return nil, err
		}
	}

	bot.dataFeed = exchange.NewDataFeed(exch, bot.log)
	bot.guard = exchange.NewBackoffController(cfg.Exchange.Name, cfg.Breakers, bot.eventFeed.Publish, bot.log)
	bot.orderController = order.NewController(exch, bot.storage, bot.orderFeed, bot.log,
		order.WithBackoffGuard(bot.guard),
		order.WithMakerOrders(cfg.Maker),
	)
	bot.health = exchange.NewHealthMonitor(bot.orderController, bot.storage, cfg.Intervals, bot.log)

	if cfg.Hedge.Enabled {
		bot.hedger = hedge.NewEngine(cfg, bot.orderController, exch, bot.log,
			hedge.WithEventPublisher(bot.eventFeed.Publish),
			hedge.WithClock(bot.clock),
		)
	} else {
		bot.trader = NewTrader(cfg, bot.orderController, bot.guard, bot.eventFeed.Publish,
			bot.log, bot.strategies, bot.scorer, bot.advisor, bot.clock)
	}

	return bot, nil
}

// Controller returns the order controller
func (bot *Bot) Controller() *order.Controller {
	return bot.orderController
}

// Trader returns the ensemble trader, nil when hedging is enabled
func (bot *Bot) Trader() *Trader {
	return bot.trader
}

// Hedger returns the hedge engine, nil unless hedging is enabled
func (bot *Bot) Hedger() *hedge.Engine {
	return bot.hedger
}

// Events returns the typed event feed
func (bot *Bot) Events() *events.Feed {
	return bot.eventFeed
}

// SubscribeCandle routes primary-timeframe candles to extra consumers,
// notification layers and chart recorders mostly
func (bot *Bot) SubscribeCandle(consumers ...exchange.DataFeedConsumer) {
	for _, consumer := range consumers {
		bot.dataFeed.Subscribe(bot.cfg.Exchange.Pair, bot.cfg.Exchange.Timeframe, consumer, false)
	}
}

// SubscribeOrder routes order updates to extra consumers
func (bot *Bot) SubscribeOrder(consumers ...order.FeedConsumer) {
	for _, consumer := range consumers {
		bot.orderFeed.Subscribe(bot.cfg.Exchange.Pair, consumer, false)
	}
}

// setupExchange pushes leverage, margin mode and position mode to the
// exchange before any order goes out
func (bot *Bot) setupExchange(ctx context.Context) error {
	pair := bot.cfg.Exchange.Pair

	if err := bot.exchange.SetPositionMode(ctx, bot.cfg.Exchange.PositionMode); err != nil {
		return fmt.Errorf("set position mode: %w", err)
	}
	if err := bot.exchange.SetMarginMode(ctx, pair, bot.cfg.Exchange.MarginMode); err != nil {
		return fmt.Errorf("set margin mode: %w", err)
	}
	if err := bot.exchange.SetLeverage(ctx, pair, bot.cfg.Exchange.Leverage); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}

	return nil
}

// Run starts every component and blocks consuming candles until the
// context is cancelled or, in backtest mode, the feed is exhausted
func (bot *Bot) Run(ctx context.Context) error {
	pair := bot.cfg.Exchange.Pair
	timeframe := bot.cfg.Exchange.Timeframe

	if err := bot.setupExchange(ctx); err != nil {
		return err
	}

	if bot.trader != nil {
		if err := bot.trader.Recover(ctx); err != nil {
			return err
		}
	}

	if err := bot.preload(ctx); err != nil {
		return err
	}

	bot.dataFeed.Subscribe(pair, timeframe, bot.onCandle, false)
	if bot.trader != nil && bot.cfg.Exchange.HigherTimeframe != "" {
		bot.dataFeed.Subscribe(pair, bot.cfg.Exchange.HigherTimeframe, bot.onHigherCandle, true)
	}
	for _, consumer := range bot.candleSubscribers {
		bot.dataFeed.Subscribe(pair, timeframe, consumer, false)
	}
	for _, consumer := range bot.orderSubscribers {
		bot.orderFeed.Subscribe(pair, consumer, false)
	}

	if bot.trader != nil {
		bot.trader.Start()
		defer func() {
			if err := bot.trader.Shutdown(context.Background()); err != nil {
				bot.log.Errorf("trader shutdown: %v", err)
			}
		}()
	}
	if bot.hedger != nil {
		defer func() {
			if err := bot.hedger.Stop(context.Background()); err != nil {
				bot.log.Errorf("hedge engine stop: %v", err)
			}
		}()
	}

	bot.eventFeed.Start()
	defer bot.eventFeed.Stop()

	bot.orderFeed.Start()
	bot.orderController.Start(ctx)
	defer bot.orderController.Stop(context.Background())

	if !bot.backtest {
		bot.health.Start(ctx)
		if bot.hedger != nil {
			bot.startHedger(ctx)
		}
	}

	// In backtest mode Start blocks until the CSV feeds are drained, so
	// every candle is queued before the replay loop runs
	bot.dataFeed.Start(ctx, bot.backtest)

	if bot.backtest {
		bot.backtestCandles(ctx)
		return nil
	}

	bot.processCandles(ctx)
	return nil
}
