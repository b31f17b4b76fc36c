// Package exchange provides the gateway-facing infrastructure of the bot:
// candle feed subscriptions, reconnect backoff, order-health sweeping,
// symbol utilities, and the paper wallet used for simulation.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/StudioSol/set"

	"github.com/quorumtrade/quorum/core"
)

// ---------------------
// Errors
// ---------------------

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientFunds = errors.New("insufficient funds or locked")
	ErrInvalidAsset      = errors.New("invalid asset")
)

// ---------------------
// Types
// ---------------------

// DataFeedConsumer is a function type that processes candle data
type DataFeedConsumer func(core.Candle)

// FeedErrorHandler receives classified stream errors; the bot wires this
// into the gateway backoff controller
type FeedErrorHandler func(pair, timeframe string, err error)

// Subscription represents a consumer subscription to a data feed
type Subscription struct {
	onCandleClose bool // Only deliver complete candles if true
	consumer      DataFeedConsumer
}

// DataFeed represents a data feed with channels for candles and errors
type DataFeed struct {
	Data chan core.Candle
	Err  chan error
}

// OrderError encapsulates an error related to an order
type OrderError struct {
	Err      error
	Pair     string
	Quantity float64
}

func (o *OrderError) Error() string {
	return fmt.Sprintf("order error: %v", o.Err)
}

func (o *OrderError) Unwrap() error { return o.Err }

// DataFeedSubscription fans exchange candle streams out to consumers. The
// control loop subscribes the primary and higher timeframes here; warmup
// history arrives through Preload before live candles start flowing.
type DataFeedSubscription struct {
	exchange                core.Feeder
	feeds                   *set.LinkedHashSetString
	dataFeeds               map[string]*DataFeed
	subscriptionsByDataFeed map[string][]Subscription
	onError                 FeedErrorHandler
	log                     core.Logger
	mu                      sync.RWMutex
}

// Option configures a DataFeedSubscription
type Option func(*DataFeedSubscription)

// WithFeedErrorHandler routes stream errors to handler instead of the log
func WithFeedErrorHandler(handler FeedErrorHandler) Option {
	return func(d *DataFeedSubscription) {
		d.onError = handler
	}
}

// ---------------------
// Constructor
// ---------------------

// NewDataFeed creates a new instance of DataFeedSubscription
func NewDataFeed(exchange core.Feeder, log core.Logger, opts ...Option) *DataFeedSubscription {
	feed := &DataFeedSubscription{
		exchange:                exchange,
		feeds:                   set.NewLinkedHashSetString(),
		log:                     log,
		dataFeeds:               make(map[string]*DataFeed),
		subscriptionsByDataFeed: make(map[string][]Subscription),
	}
	for _, opt := range opts {
		opt(feed)
	}
	return feed
}

// ---------------------
// Public Methods
// ---------------------

// Subscribe adds a new subscription for a pair and timeframe
func (d *DataFeedSubscription) Subscribe(pair, timeframe string, consumer DataFeedConsumer, onCandleClose bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := d.createFeedKey(pair, timeframe)
	d.feeds.Add(key)
	d.subscriptionsByDataFeed[key] = append(d.subscriptionsByDataFeed[key], Subscription{
		onCandleClose: onCandleClose,
		consumer:      consumer,
	})
}

// Preload replays historical candles to the subscribers of a feed.
// Incomplete candles are skipped so consumers only ever warm up on
// closed history.
func (d *DataFeedSubscription) Preload(pair, timeframe string, candles []core.Candle) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	d.log.Infof("preloading %d candles for %s-%s", len(candles), pair, timeframe)
	key := d.createFeedKey(pair, timeframe)

	for _, candle := range candles {
		if !candle.Complete {
			continue
		}

		for _, subscription := range d.subscriptionsByDataFeed[key] {
			subscription.consumer(candle)
		}
	}
}

// Connect establishes the exchange stream for every registered feed
func (d *DataFeedSubscription) Connect(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Info("connecting to the exchange streams")

	for feed := range d.feeds.Iter() {
		pair, timeframe := d.extractPairTimeframeFromKey(feed)
		candleChan, errChan := d.exchange.CandlesSubscription(ctx, pair, timeframe)
		d.dataFeeds[feed] = &DataFeed{
			Data: candleChan,
			Err:  errChan,
		}
	}
}

// Start begins processing all feeds
func (d *DataFeedSubscription) Start(ctx context.Context, waitForCompletion bool) {
	d.Connect(ctx)

	var wg sync.WaitGroup

	d.mu.RLock()
	for key, feed := range d.dataFeeds {
		wg.Add(1)
		go d.processFeed(ctx, key, feed, &wg)
	}
	d.mu.RUnlock()

	d.log.Info("data feed connected")

	if waitForCompletion {
		wg.Wait()
	}
}

// ---------------------
// Private Methods
// ---------------------

// processFeed pumps one feed until its channels close or the context ends
func (d *DataFeedSubscription) processFeed(ctx context.Context, key string, feed *DataFeed, wg *sync.WaitGroup) {
	defer wg.Done()

	pair, timeframe := d.extractPairTimeframeFromKey(key)

	for {
		select {
		case <-ctx.Done():
			return

		case candle, ok := <-feed.Data:
			if !ok {
				return
			}
			d.processCandle(key, candle)

		case err, ok := <-feed.Err:
			if !ok {
				return
			}
			if err == nil {
				continue
			}

			if d.onError != nil {
				d.onError(pair, timeframe, err)
				continue
			}
			d.log.WithFields(map[string]any{
				"pair":      pair,
				"timeframe": timeframe,
				"kind":      string(core.KindOf(err)),
			}).WithError(err).Error("data feed error")
		}
	}
}

// processCandle sends a candle to all subscribed consumers
func (d *DataFeedSubscription) processCandle(key string, candle core.Candle) {
	d.mu.RLock()
	subscriptions := d.subscriptionsByDataFeed[key]
	d.mu.RUnlock()

	for _, subscription := range subscriptions {
		if subscription.onCandleClose && !candle.Complete {
			continue
		}
		subscription.consumer(candle)
	}
}

// ---------------------
// Helper Methods
// ---------------------

// createFeedKey generates a unique key for a pair and timeframe
func (d *DataFeedSubscription) createFeedKey(pair, timeframe string) string {
	return fmt.Sprintf("%s--%s", pair, timeframe)
}

// extractPairTimeframeFromKey extracts the pair and timeframe from a key
func (d *DataFeedSubscription) extractPairTimeframeFromKey(key string) (pair, timeframe string) {
	parts := strings.Split(key, "--")
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
