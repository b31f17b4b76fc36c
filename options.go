package quorum

import (
	"time"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/events"
	"github.com/quorumtrade/quorum/exchange"
	"github.com/quorumtrade/quorum/order"
)

// Option is a functional option for configuring a Bot instance
type Option func(*Bot)

// WithBacktest sets the bot to run in backtest mode, it is required for
// backtesting environments. Backtest mode replays candles from a priority
// queue in chronological order against the paper wallet.
func WithBacktest(wallet *exchange.PaperWallet) Option {
	return func(bot *Bot) {
		bot.backtest = true
		opt := WithPaperWallet(wallet)
		opt(bot)
	}
}

// WithStorage sets the order storage for the bot, by default it uses a
// local file called quorum.db
func WithStorage(storage core.OrderStorage) Option {
	return func(bot *Bot) {
		bot.storage = storage
	}
}

// WithLogger replaces the default logger
func WithLogger(log core.Logger) Option {
	return func(bot *Bot) {
		bot.log = log
	}
}

// WithPaperWallet sets the paper wallet for the bot (used for backtesting
// and live simulation)
func WithPaperWallet(wallet *exchange.PaperWallet) Option {
	return func(bot *Bot) {
		bot.paperWallet = wallet
	}
}

// WithStrategies replaces the default voting strategy set
func WithStrategies(strategies ...core.Strategy) Option {
	return func(bot *Bot) {
		bot.strategies = strategies
	}
}

// WithScorer wires a trade-quality scorer into the filter pipeline
func WithScorer(scorer core.Scorer) Option {
	return func(bot *Bot) {
		bot.scorer = scorer
	}
}

// WithAdvisor wires a policy advisor into the filter pipeline
func WithAdvisor(advisor core.Advisor) Option {
	return func(bot *Bot) {
		bot.advisor = advisor
	}
}

// WithCandleSubscription subscribes a consumer to the candle feed
func WithCandleSubscription(consumer exchange.DataFeedConsumer) Option {
	return func(bot *Bot) {
		bot.candleSubscribers = append(bot.candleSubscribers, consumer)
	}
}

// WithOrderSubscription subscribes a consumer to the order feed
func WithOrderSubscription(consumer order.FeedConsumer) Option {
	return func(bot *Bot) {
		bot.orderSubscribers = append(bot.orderSubscribers, consumer)
	}
}

// WithEventSubscription subscribes a consumer to the event feed,
// optionally restricted to the given event kinds
func WithEventSubscription(consumer events.Consumer, kinds ...string) Option {
	return func(bot *Bot) {
		bot.eventFeed.Subscribe(consumer, kinds...)
	}
}

// WithClock overrides the time source, used by simulated sessions
func WithClock(clock func() time.Time) Option {
	return func(bot *Bot) {
		bot.clock = clock
	}
}
