package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
)

// cancelRecorder implements core.Broker for sweep tests
type cancelRecorder struct {
	cancelled []int64
}

func (b *cancelRecorder) Account(ctx context.Context) (core.Account, error) {
	return core.Account{}, nil
}

func (b *cancelRecorder) Positions(ctx context.Context, pair string) ([]core.PositionSnapshot, error) {
	return nil, nil
}

func (b *cancelRecorder) Order(ctx context.Context, pair string, id int64) (core.Order, error) {
	return core.Order{}, nil
}

func (b *cancelRecorder) CreateOrderMarket(ctx context.Context, side core.SideType, pair string, size float64, reduceOnly bool) (core.Order, error) {
	return core.Order{}, nil
}

func (b *cancelRecorder) CreateOrderLimit(ctx context.Context, side core.SideType, pair string, size, limit float64, reduceOnly, postOnly bool) (core.Order, error) {
	return core.Order{}, nil
}

func (b *cancelRecorder) Cancel(ctx context.Context, order core.Order) error {
	b.cancelled = append(b.cancelled, order.ExchangeID)
	return nil
}

func (b *cancelRecorder) SetLeverage(ctx context.Context, pair string, leverage int) error {
	return nil
}

func (b *cancelRecorder) SetMarginMode(ctx context.Context, pair string, mode core.MarginMode) error {
	return nil
}

func (b *cancelRecorder) SetPositionMode(ctx context.Context, mode core.PositionMode) error {
	return nil
}

// memoryOrderStore is a minimal in-memory core.OrderStorage
type memoryOrderStore struct {
	orders []*core.Order
}

func (s *memoryOrderStore) CreateOrder(ctx context.Context, order *core.Order) error {
	order.ID = int64(len(s.orders) + 1)
	stored := *order
	s.orders = append(s.orders, &stored)
	return nil
}

func (s *memoryOrderStore) UpdateOrder(ctx context.Context, order *core.Order) error {
	for i, stored := range s.orders {
		if stored.ID == order.ID {
			updated := *order
			s.orders[i] = &updated
			return nil
		}
	}
	return nil
}

func (s *memoryOrderStore) Orders(ctx context.Context, filters ...core.OrderFilter) ([]*core.Order, error) {
	result := make([]*core.Order, 0)
outer:
	for _, order := range s.orders {
		for _, filter := range filters {
			if !filter(*order) {
				continue outer
			}
		}
		copied := *order
		result = append(result, &copied)
	}
	return result, nil
}

func TestHealthMonitorSweep(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	broker := &cancelRecorder{}
	store := &memoryOrderStore{}
	ctx := context.Background()

	orders := []core.Order{
		// Fresh, left alone
		{ExchangeID: 1, Pair: "BTCUSDT", Status: core.OrderStatusTypeNew, CreatedAt: now.Add(-time.Minute)},
		// Stale, logged but kept
		{ExchangeID: 2, Pair: "BTCUSDT", Status: core.OrderStatusTypeNew, CreatedAt: now.Add(-10 * time.Minute)},
		// Overaged, cancelled
		{ExchangeID: 3, Pair: "BTCUSDT", Status: core.OrderStatusTypeNew, CreatedAt: now.Add(-time.Hour)},
		// Partially filled and overaged, never cancelled
		{ExchangeID: 4, Pair: "BTCUSDT", Status: core.OrderStatusTypePartiallyFilled, CreatedAt: now.Add(-time.Hour)},
		// Terminal, not swept
		{ExchangeID: 5, Pair: "BTCUSDT", Status: core.OrderStatusTypeFilled, CreatedAt: now.Add(-time.Hour)},
	}
	for i := range orders {
		require.NoError(t, store.CreateOrder(ctx, &orders[i]))
	}

	monitor := NewHealthMonitor(broker, store, core.IntervalConfig{
		OrderHealth:         time.Minute,
		StaleOrderThreshold: 5 * time.Minute,
		MaxOrderAge:         30 * time.Minute,
	}, core.NewNopLogger())
	monitor.clock = func() time.Time { return now }

	report, err := monitor.Sweep(ctx)
	require.NoError(t, err)

	require.Equal(t, 4, report.Checked)
	require.Equal(t, 1, report.Stale)
	require.Equal(t, 1, report.Cancelled)
	require.Equal(t, 1, report.PartialFills)

	require.Equal(t, []int64{3}, broker.cancelled)

	// The pulled order waits for reconciliation to confirm
	pulled, err := store.Orders(ctx, core.WithStatus(core.OrderStatusTypePendingCancel))
	require.NoError(t, err)
	require.Len(t, pulled, 1)
	require.Equal(t, int64(3), pulled[0].ExchangeID)
}

func TestHealthMonitorSweepEmpty(t *testing.T) {
	monitor := NewHealthMonitor(&cancelRecorder{}, &memoryOrderStore{}, core.IntervalConfig{}, core.NewNopLogger())

	report, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepReport{}, report)
}
