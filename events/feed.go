// Package events fans typed trading events out to external consumers.
// The core only publishes; persistence and delivery concerns live on
// the consumer side.
package events

import (
	"sync"

	"github.com/samber/lo"

	"github.com/quorumtrade/quorum/core"
)

// Consumer is a function type that processes published events
type Consumer func(event core.Event)

// Subscription represents a consumer subscription to the event stream
type Subscription struct {
	kinds    []string
	consumer Consumer
}

// Feed is a buffered publish/subscribe hub for core events. Publishing
// never blocks the trading loop; events are dropped when the buffer is
// full and no consumer is draining.
type Feed struct {
	mu            sync.RWMutex
	data          chan core.Event
	subscriptions []Subscription
	started       bool
	done          chan struct{}
}

// NewFeed creates a new event feed hub
func NewFeed() *Feed {
	return &Feed{
		data: make(chan core.Event, 256),
		done: make(chan struct{}),
	}
}

// Subscribe registers a consumer for the given event kinds. With no
// kinds the consumer receives every event.
func (f *Feed) Subscribe(consumer Consumer, kinds ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscriptions = append(f.subscriptions, Subscription{
		kinds:    kinds,
		consumer: consumer,
	})
}

// Publish enqueues an event for delivery. The send never blocks.
func (f *Feed) Publish(event core.Event) {
	select {
	case <-f.done:
	case f.data <- event:
	default:
	}
}

// Start begins delivering published events to subscribers
func (f *Feed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return
	}
	f.started = true
	go f.processEvents()
}

// processEvents delivers queued events until the feed is stopped
func (f *Feed) processEvents() {
	for {
		select {
		case <-f.done:
			return
		case event := <-f.data:
			f.mu.RLock()
			subscriptions := f.subscriptions
			f.mu.RUnlock()

			for _, subscription := range subscriptions {
				if len(subscription.kinds) > 0 &&
					!lo.Contains(subscription.kinds, event.EventKind()) {
					continue
				}
				subscription.consumer(event)
			}
		}
	}
}

// Stop shuts the feed down. Events still buffered are discarded.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return
	}
	f.started = false
	close(f.done)
}
