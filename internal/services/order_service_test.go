package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/resolver"
	"StarsAutoFill/internal/services"
	"StarsAutoFill/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	recipient string
	err       error
}

func (s stubLookup) SearchStarsRecipient(ctx context.Context, username string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.recipient, nil
}

func newService(t *testing.T, lookup resolver.RecipientLookup) services.OrderService {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := resolver.New(lookup)
	r.Backoff = time.Millisecond
	return services.OrderService{Store: st, Resolver: r, Instance: "hub-1"}
}

func TestIngest(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})
	ctx := context.Background()

	order, err := svc.Ingest(ctx, services.IngestRequest{
		OrderID:          "ord-1",
		StarsAmount:      50,
		BuyerHandle:      "buyer",
		ChatID:           100,
		TelegramUsername: "valid_name",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderReady, order.Status)
	require.NotNil(t, order.RecipientID)
	assert.Equal(t, "recipient-1", *order.RecipientID)
	assert.Equal(t, "hub-1", order.HubInstance)
	assert.Equal(t, models.DefaultRetries, order.RetriesLeft)

	stored, err := svc.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderReady, stored.Status)
}

func TestIngestValidation(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, services.IngestRequest{StarsAmount: 50})
	assert.ErrorIs(t, err, services.ErrMissingOrderID)

	_, err = svc.Ingest(ctx, services.IngestRequest{OrderID: "ord-1"})
	assert.ErrorIs(t, err, services.ErrInvalidAmount)

	_, err = svc.Ingest(ctx, services.IngestRequest{OrderID: "ord-1", StarsAmount: -5})
	assert.ErrorIs(t, err, services.ErrInvalidAmount)
}

func TestIngestWithoutUsernameParks(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})

	order, err := svc.Ingest(context.Background(), services.IngestRequest{
		OrderID:     "ord-1",
		StarsAmount: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderWaitingForUsername, order.Status)
	assert.Nil(t, order.RecipientID)
}

func TestIngestBatch(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})

	orders, err := svc.IngestBatch(context.Background(), []services.IngestRequest{
		{OrderID: "ord-1", StarsAmount: 50, TelegramUsername: "valid_name"},
		{OrderID: "ord-2", StarsAmount: 75},
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, models.OrderReady, orders[0].Status)
	assert.Equal(t, models.OrderWaitingForUsername, orders[1].Status)
}

func TestSetUsername(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, services.IngestRequest{OrderID: "ord-1", StarsAmount: 50})
	require.NoError(t, err)

	order, err := svc.SetUsername(ctx, "ord-1", "corrected_name")
	require.NoError(t, err)
	assert.Equal(t, models.OrderReady, order.Status)
	assert.Equal(t, "corrected_name", order.TelegramUsername)
	require.NotNil(t, order.RecipientID)
}

func TestSetUsernameRejectsBadHandle(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})

	_, err := svc.SetUsername(context.Background(), "ord-1", "x!")
	assert.ErrorIs(t, err, services.ErrInvalidUsername)
}

func TestSetUsernameOnlyWhenWaiting(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, services.IngestRequest{OrderID: "ord-1", StarsAmount: 50, TelegramUsername: "valid_name"})
	require.NoError(t, err)

	// Order resolved straight to READY; correction no longer applies.
	_, err = svc.SetUsername(ctx, "ord-1", "other_name")
	assert.ErrorIs(t, err, services.ErrNotCorrectable)
}

func TestSetUsernameMissingOrder(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})

	_, err := svc.SetUsername(context.Background(), "nope", "valid_name")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefund(t *testing.T) {
	svc := newService(t, stubLookup{err: errors.New("fragment down")})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, services.IngestRequest{OrderID: "ord-1", StarsAmount: 50})
	require.NoError(t, err)

	order, err := svc.Refund(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, order.Status)
	assert.Zero(t, order.RetriesLeft)
	assert.True(t, order.Terminal())
}

func TestRefundRejectsCompleted(t *testing.T) {
	svc := newService(t, stubLookup{recipient: "recipient-1"})
	ctx := context.Background()

	txID := "tx-1"
	done := &models.Order{
		OrderID:          "ord-1",
		StarsAmount:      50,
		HubInstance:      "hub-1",
		Status:           models.OrderDone,
		TonTransactionID: &txID,
	}
	require.NoError(t, svc.Store.AddOrUpdate(ctx, done))

	_, err := svc.Refund(ctx, "ord-1")
	assert.ErrorIs(t, err, services.ErrNotRefundable)
}
