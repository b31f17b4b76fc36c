package order

import (
	"sync"

	"github.com/quorumtrade/quorum/core"
)

// FeedConsumer is a function type that processes order events
type FeedConsumer func(order core.Order)

type orderEvent struct {
	order core.Order
	isNew bool
}

// DataFeed carries order events for one pair
type DataFeed struct {
	Data chan orderEvent
	Err  chan error
}

// Subscription represents a consumer subscription to order updates
type Subscription struct {
	onlyNewOrder bool
	consumer     FeedConsumer
}

// Feed manages order data feeds and subscriptions
type Feed struct {
	mu                    sync.RWMutex
	OrderFeeds            map[string]*DataFeed
	SubscriptionsBySymbol map[string][]Subscription
}

// NewOrderFeed creates a new order feed manager
func NewOrderFeed() *Feed {
	return &Feed{
		OrderFeeds:            make(map[string]*DataFeed),
		SubscriptionsBySymbol: make(map[string][]Subscription),
	}
}

// Subscribe registers a consumer to receive order updates for a pair.
// With onlyNewOrder set, the consumer sees only freshly placed orders,
// not later status transitions.
func (f *Feed) Subscribe(pair string, consumer FeedConsumer, onlyNewOrder bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.OrderFeeds[pair]; !ok {
		f.OrderFeeds[pair] = &DataFeed{
			Data: make(chan orderEvent, 100),
			Err:  make(chan error, 100),
		}
	}

	f.SubscriptionsBySymbol[pair] = append(f.SubscriptionsBySymbol[pair], Subscription{
		onlyNewOrder: onlyNewOrder,
		consumer:     consumer,
	})
}

// Publish sends an order update to all subscribers for the pair. The
// send never blocks; updates are dropped when no one is draining.
func (f *Feed) Publish(order core.Order, isNew bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if feed, ok := f.OrderFeeds[order.Pair]; ok {
		select {
		case feed.Data <- orderEvent{order: order, isNew: isNew}:
		default:
		}
	}
}

// Start begins processing order updates for all registered feeds
func (f *Feed) Start() {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for pair, feed := range f.OrderFeeds {
		go f.processOrdersForPair(pair, feed)
	}
}

// processOrdersForPair handles order updates for a specific trading pair
func (f *Feed) processOrdersForPair(pair string, feed *DataFeed) {
	for event := range feed.Data {
		f.mu.RLock()
		subscriptions := f.SubscriptionsBySymbol[pair]
		f.mu.RUnlock()

		for _, subscription := range subscriptions {
			if subscription.onlyNewOrder && !event.isNew {
				continue
			}
			subscription.consumer(event.order)
		}
	}
}

// Stop gracefully shuts down all feed channels
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for pair, feed := range f.OrderFeeds {
		close(feed.Data)
		close(feed.Err)
		delete(f.OrderFeeds, pair)
	}

	f.SubscriptionsBySymbol = make(map[string][]Subscription)
}
