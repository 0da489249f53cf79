package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newOrder(id string, status models.OrderStatus) *models.Order {
	return &models.Order{
		OrderID:          id,
		StarsAmount:      50,
		BuyerHandle:      "buyer",
		ChatID:           100,
		HubInstance:      "hub-1",
		TelegramUsername: "somebody",
		Status:           status,
		RetriesLeft:      models.DefaultRetries,
	}
}

func TestUpsertAndGet(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	order := newOrder("ord-1", models.OrderUnprocessed)
	require.NoError(t, st.AddOrUpdate(ctx, order))

	got, err := st.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Equal(t, int64(50), got.StarsAmount)
	assert.Equal(t, models.OrderUnprocessed, got.Status)
	assert.Equal(t, models.DefaultRetries, got.RetriesLeft)
	assert.Nil(t, got.RecipientID)
	assert.False(t, got.CreatedAt.IsZero())

	// Same id overwrites in place instead of duplicating.
	recipient := "recipient-1"
	order.Status = models.OrderReady
	order.RecipientID = &recipient
	require.NoError(t, st.AddOrUpdate(ctx, order))

	got, err = st.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderReady, got.Status)
	require.NotNil(t, got.RecipientID)
	assert.Equal(t, "recipient-1", *got.RecipientID)

	all, err := st.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetMissing(t *testing.T) {
	st := newStore(t)

	_, err := st.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddOrUpdateBatch(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	batch := []*models.Order{
		newOrder("ord-1", models.OrderReady),
		newOrder("ord-2", models.OrderWaitingForUsername),
		newOrder("ord-3", models.OrderDone),
	}
	require.NoError(t, st.AddOrUpdateBatch(ctx, batch))

	got, err := st.GetMany(ctx, []string{"ord-1", "ord-2", "ord-3"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.OrderWaitingForUsername, got["ord-2"].Status)

	require.NoError(t, st.AddOrUpdateBatch(ctx, nil))
}

func TestGetManyStatusFilter(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddOrUpdateBatch(ctx, []*models.Order{
		newOrder("ord-1", models.OrderReady),
		newOrder("ord-2", models.OrderDone),
		newOrder("ord-3", models.OrderWaitingForUsername),
	}))

	got, err := st.GetMany(ctx, nil, models.OrderReady, models.OrderDone)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got, "ord-1")
	assert.Contains(t, got, "ord-2")

	got, err = st.GetMany(ctx, []string{"ord-3"}, models.OrderReady)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetReady(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	erroredRetryable := newOrder("ord-err-retry", models.OrderError)
	erroredRetryable.RetriesLeft = 1
	erroredExhausted := newOrder("ord-err-done", models.OrderError)
	erroredExhausted.RetriesLeft = 0
	otherHub := newOrder("ord-other-hub", models.OrderReady)
	otherHub.HubInstance = "hub-2"

	require.NoError(t, st.AddOrUpdateBatch(ctx, []*models.Order{
		newOrder("ord-ready", models.OrderReady),
		newOrder("ord-waiting", models.OrderWaitingForUsername),
		newOrder("ord-done", models.OrderDone),
		newOrder("ord-transferring", models.OrderTransferring),
		erroredRetryable,
		erroredExhausted,
		otherHub,
	}))

	got, err := st.GetReady(ctx, "hub-1", 25)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got, "ord-ready")
	assert.Contains(t, got, "ord-err-retry")

	got, err = st.GetReady(ctx, "hub-2", 25)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, "ord-other-hub")
}

func TestGetReadyLimit(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	var batch []*models.Order
	for i := 0; i < 30; i++ {
		batch = append(batch, newOrder(fmt.Sprintf("ord-%02d", i), models.OrderReady))
	}
	require.NoError(t, st.AddOrUpdateBatch(ctx, batch))

	got, err := st.GetReady(ctx, "hub-1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)

	// Zero falls back to the default cap.
	got, err = st.GetReady(ctx, "hub-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, store.DefaultReadyLimit)
}
