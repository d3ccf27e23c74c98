package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trade-autopilot/internal/domain"
	"trade-autopilot/internal/storage"
	"trade-autopilot/internal/storage/postgres"
)

func TestTrackedTradeStorePostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTrackedTradeStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	trade := &domain.TrackedTrade{
		ID:          "pgt1",
		Symbol:      "AAPL",
		StrategyID:  "trend_follow",
		Action:      domain.ActionBuy,
		Quantity:    10,
		Entry:       100,
		Stop:        95,
		Target:      110,
		InitialRisk: 5,
		Paper:       true,
		OpenedAt:    now,
		Status:      domain.TradeStatusActive,
	}

	t.Run("insert and get", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, trade))
		require.ErrorIs(t, store.Insert(ctx, trade), storage.ErrDuplicateKey)

		got, err := store.GetByID(ctx, "pgt1")
		require.NoError(t, err)
		require.Equal(t, "AAPL", got.Symbol)
		require.Equal(t, domain.TradeStatusActive, got.Status)
		require.Equal(t, int64(10), got.Quantity)
		require.True(t, got.OpenedAt.Equal(now))

		_, err = store.GetByID(ctx, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("counts and listing", func(t *testing.T) {
		second := *trade
		second.ID = "pgt2"
		second.Symbol = "MSFT"
		second.OpenedAt = now.Add(time.Minute)
		require.NoError(t, store.Insert(ctx, &second))

		n, err := store.CountOpen(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		n, err = store.CountOpenBySymbol(ctx, "AAPL")
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = store.CountOpenedSince(ctx, now.Add(30*time.Second))
		require.NoError(t, err)
		require.Equal(t, 1, n)

		open, err := store.ListOpen(ctx)
		require.NoError(t, err)
		require.Len(t, open, 2)
		require.Equal(t, "pgt1", open[0].ID)

		recent, err := store.ListRecent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		require.Equal(t, "pgt2", recent[0].ID)
	})

	t.Run("update stop", func(t *testing.T) {
		require.NoError(t, store.UpdateStop(ctx, "pgt1", 98))
		got, err := store.GetByID(ctx, "pgt1")
		require.NoError(t, err)
		require.Equal(t, 98.0, got.Stop)

		require.ErrorIs(t, store.UpdateStop(ctx, "missing", 1), storage.ErrNotFound)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		closedAt := now.Add(2 * time.Minute)
		require.NoError(t, store.Close(ctx, "pgt1", domain.ExitReasonTarget, 110, closedAt))
		require.ErrorIs(t, store.Close(ctx, "pgt1", domain.ExitReasonTarget, 110, closedAt),
			storage.ErrAlreadyClosed)
		require.ErrorIs(t, store.UpdateStop(ctx, "pgt1", 99), storage.ErrAlreadyClosed)

		got, err := store.GetByID(ctx, "pgt1")
		require.NoError(t, err)
		require.Equal(t, domain.TradeStatusClosed, got.Status)
		require.Equal(t, domain.ExitReasonTarget, got.ExitReason)
		require.Equal(t, ptr(110.0), got.ExitPrice)
		require.NotNil(t, got.ClosedAt)

		n, err := store.CountOpen(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})
}
