package quorum

import (
	"context"

	"github.com/schollz/progressbar/v3"

	"github.com/quorumtrade/quorum/core"
)

// onCandle handles incoming primary-timeframe candles and adds them to
// the priority queue
func (bot *Bot) onCandle(candle core.Candle) {
	bot.priorityQueueCandle.Push(candle)
}

// onHigherCandle routes confluence-timeframe candles straight to the
// trader. They only refresh a read-only view, so queue ordering against
// the primary feed does not matter.
func (bot *Bot) onHigherCandle(candle core.Candle) {
	if bot.trader != nil {
		bot.trader.OnHigherCandle(candle)
	}
}

// processCandle runs a single candle through the bot's systems
func (bot *Bot) processCandle(ctx context.Context, candle core.Candle) {
	if bot.paperWallet != nil {
		bot.paperWallet.OnCandle(candle)
	}

	if bot.trader != nil {
		bot.trader.OnPartialCandle(ctx, candle)
		if candle.Complete {
			bot.trader.OnCandle(ctx, candle)
		}
	}

	if bot.hedger != nil && candle.Complete {
		bot.startHedger(ctx)
		bot.hedger.OnCandle(ctx, candle)
	}
}

// startHedger brings the hedge engine up once quotes are available. In a
// backtest the synthetic ticker needs a first candle, so the call is
// retried from the candle path until it sticks.
func (bot *Bot) startHedger(ctx context.Context) {
	if bot.hedger == nil || bot.hedgerStarted {
		return
	}

	if err := bot.hedger.Start(ctx); err != nil {
		bot.log.Errorf("hedge engine start: %v", err)
		return
	}
	bot.hedgerStarted = true
}

// processCandles drains the priority queue until the feed stops
func (bot *Bot) processCandles(ctx context.Context) {
	for item := range bot.priorityQueueCandle.PopLock() {
		bot.processCandle(ctx, item.(core.Candle))
	}
}

// backtestCandles replays the queued candles in chronological order with
// a progress bar
func (bot *Bot) backtestCandles(ctx context.Context) {
	bot.log.Info("[SETUP] Starting backtesting")

	progressBar := progressbar.Default(int64(bot.priorityQueueCandle.Len()))
	for bot.priorityQueueCandle.Len() > 0 {
		item := bot.priorityQueueCandle.Pop()

		bot.processCandle(ctx, item.(core.Candle))

		if err := progressBar.Add(1); err != nil {
			bot.log.Warnf("update progressbar fail: %v", err)
		}
	}
}

// preload fills the strategy dataframes with warmup history before live
// candles start flowing. Backtests skip it, the CSV feed already starts
// at the beginning.
func (bot *Bot) preload(ctx context.Context) error {
	if bot.backtest || bot.trader == nil {
		return nil
	}

	pair := bot.cfg.Exchange.Pair
	timeframe := bot.cfg.Exchange.Timeframe
	warmup := bot.trader.WarmupPeriod()

	candles, err := bot.exchange.CandlesByLimit(ctx, pair, timeframe, warmup)
	if err != nil {
		return err
	}

	for _, candle := range candles {
		bot.processCandle(ctx, candle)
	}
	bot.dataFeed.Preload(pair, timeframe, candles)

	if higher := bot.cfg.Exchange.HigherTimeframe; higher != "" {
		higherCandles, err := bot.exchange.CandlesByLimit(ctx, pair, higher, warmup)
		if err != nil {
			return err
		}
		for _, candle := range higherCandles {
			bot.trader.OnHigherCandle(candle)
		}
		bot.dataFeed.Preload(pair, higher, higherCandles)
	}

	return nil
}
