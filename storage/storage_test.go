package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
)

// testOrderStorage exercises the core.OrderStorage contract shared by
// every backend
func testOrderStorage(t *testing.T, store core.OrderStorage) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &core.Order{
		ExchangeID: 11,
		Pair:       "BTCUSDT",
		Side:       core.SideTypeBuy,
		Type:       core.OrderTypeMarket,
		Status:     core.OrderStatusTypeFilled,
		Price:      100,
		Quantity:   1,
		CreatedAt:  base,
		UpdatedAt:  base,
	}
	require.NoError(t, store.CreateOrder(ctx, first))
	require.NotZero(t, first.ID)

	second := &core.Order{
		ExchangeID: 12,
		Pair:       "ETHUSDT",
		Side:       core.SideTypeSell,
		Type:       core.OrderTypeLimit,
		Status:     core.OrderStatusTypeNew,
		Price:      2000,
		Quantity:   2,
		CreatedAt:  base.Add(time.Minute),
		UpdatedAt:  base.Add(time.Minute),
	}
	require.NoError(t, store.CreateOrder(ctx, second))
	require.NotEqual(t, first.ID, second.ID)

	all, err := store.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	working, err := store.Orders(ctx, core.WithStatusIn(core.OrderStatusTypeNew))
	require.NoError(t, err)
	require.Len(t, working, 1)
	require.Equal(t, int64(12), working[0].ExchangeID)

	byPair, err := store.Orders(ctx, core.WithPair("BTCUSDT"))
	require.NoError(t, err)
	require.Len(t, byPair, 1)
	require.InDelta(t, 100, byPair[0].Price, 1e-9)

	second.Status = core.OrderStatusTypeCanceled
	second.UpdatedAt = base.Add(2 * time.Minute)
	require.NoError(t, store.UpdateOrder(ctx, second))

	cancelled, err := store.Orders(ctx, core.WithStatus(core.OrderStatusTypeCanceled))
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.Equal(t, second.ID, cancelled[0].ID)

	missing := &core.Order{ID: 9999, Pair: "BTCUSDT"}
	require.Error(t, store.UpdateOrder(ctx, missing))
}

func TestBuntStorage(t *testing.T) {
	store, err := NewFromMemory()
	require.NoError(t, err)
	defer store.Close()

	testOrderStorage(t, store)
}

func TestSQLStorage(t *testing.T) {
	store, err := NewFromSQLite(filepath.Join(t.TempDir(), "orders.db"), DefaultSQLConfig())
	require.NoError(t, err)
	defer store.Close()

	testOrderStorage(t, store)
}

func TestBuntStorageKeepsIDsAcrossRestart(t *testing.T) {
	file := filepath.Join(t.TempDir(), "orders.db")
	ctx := context.Background()

	store, err := NewFromFile(file)
	require.NoError(t, err)

	order := &core.Order{ExchangeID: 1, Pair: "BTCUSDT", Status: core.OrderStatusTypeFilled}
	require.NoError(t, store.CreateOrder(ctx, order))
	require.Equal(t, int64(1), order.ID)
	require.NoError(t, store.Close())

	// A reopened store must not reuse persisted IDs
	reopened, err := NewFromFile(file)
	require.NoError(t, err)
	defer reopened.Close()

	next := &core.Order{ExchangeID: 2, Pair: "BTCUSDT", Status: core.OrderStatusTypeNew}
	require.NoError(t, reopened.CreateOrder(ctx, next))
	require.Equal(t, int64(2), next.ID)

	all, err := reopened.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
