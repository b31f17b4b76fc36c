package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
)

func TestFeedPublishSubscribe(t *testing.T) {
	feed := NewOrderFeed()

	received := make(chan core.Order, 1)
	feed.Subscribe("BTCUSDT", func(order core.Order) {
		received <- order
	}, false)

	feed.Start()
	defer feed.Stop()

	feed.Publish(core.Order{Pair: "BTCUSDT", Quantity: 1}, true)

	select {
	case order := <-received:
		require.Equal(t, "BTCUSDT", order.Pair)
		require.Equal(t, 1.0, order.Quantity)
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for order")
	}
}

func TestFeedOnlyNewOrders(t *testing.T) {
	feed := NewOrderFeed()

	received := make(chan core.Order, 2)
	feed.Subscribe("BTCUSDT", func(order core.Order) {
		received <- order
	}, true)

	feed.Start()
	defer feed.Stop()

	feed.Publish(core.Order{Pair: "BTCUSDT", ExchangeID: 1}, false)
	feed.Publish(core.Order{Pair: "BTCUSDT", ExchangeID: 2}, true)

	select {
	case order := <-received:
		require.Equal(t, int64(2), order.ExchangeID)
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for order")
	}

	// The status update published first must never arrive
	require.Empty(t, received)
}

func TestFeedIgnoresUnknownPair(t *testing.T) {
	feed := NewOrderFeed()

	received := make(chan core.Order, 1)
	feed.Subscribe("BTCUSDT", func(order core.Order) {
		received <- order
	}, false)

	feed.Start()
	defer feed.Stop()

	feed.Publish(core.Order{Pair: "ETHUSDT"}, true)

	select {
	case <-received:
		require.Fail(t, "received order for a pair without subscribers")
	case <-time.After(100 * time.Millisecond):
	}
}
