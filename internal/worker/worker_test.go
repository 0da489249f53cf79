package worker_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"StarsAutoFill/internal/fragment"
	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/notify"
	"StarsAutoFill/internal/provider"
	"StarsAutoFill/internal/store"
	"StarsAutoFill/internal/ton"
	"StarsAutoFill/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFragment struct {
	mu      sync.Mutex
	initErr map[string]error
}

func (f *fakeFragment) SearchStarsRecipient(ctx context.Context, username string) (string, error) {
	return "recipient-" + username, nil
}

func (f *fakeFragment) InitBuyStarsRequest(ctx context.Context, recipientID string, quantity int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.initErr[recipientID]; err != nil {
		return "", err
	}
	return "req-" + recipientID, nil
}

func (f *fakeFragment) GetBuyStarsLink(ctx context.Context, requestID string) (*fragment.BuyStarsLink, error) {
	payload := base64.StdEncoding.EncodeToString([]byte("Ref#test:1"))
	return &fragment.BuyStarsLink{
		Address:    "EQdest",
		Amount:     1_000_000,
		RawPayload: payload,
		ValidUntil: time.Now().Add(time.Minute).Unix(),
	}, nil
}

type fakeWallet struct {
	mu        sync.Mutex
	err       error
	calls     int
	transfers [][]ton.Transfer
}

func (f *fakeWallet) Transfer(ctx context.Context, transfers []ton.Transfer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.transfers = append(f.transfers, transfers)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("tx-%d", f.calls), nil
}

func (f *fakeWallet) lastTransfers() []ton.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transfers) == 0 {
		return nil
	}
	return f.transfers[len(f.transfers)-1]
}

type recordingSink struct {
	success chan []*models.Order
	failed  chan []*models.Order
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		success: make(chan []*models.Order, 4),
		failed:  make(chan []*models.Order, 4),
	}
}

func (s *recordingSink) OnSuccess(orders []*models.Order) { s.success <- orders }
func (s *recordingSink) OnError(orders []*models.Order)   { s.failed <- orders }

func waitOrders(t *testing.T, ch chan []*models.Order) []*models.Order {
	t.Helper()
	select {
	case orders := <-ch:
		return orders
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func assertNoOrders(t *testing.T, ch chan []*models.Order) {
	t.Helper()
	select {
	case orders := <-ch:
		t.Fatalf("unexpected notification for %d orders", len(orders))
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func readyOrder(id string) *models.Order {
	recipient := "recipient-" + id
	return &models.Order{
		OrderID:          id,
		StarsAmount:      50,
		BuyerHandle:      "buyer",
		ChatID:           100,
		HubInstance:      "hub-1",
		TelegramUsername: "somebody",
		RecipientID:      &recipient,
		Status:           models.OrderReady,
		RetriesLeft:      models.DefaultRetries,
	}
}

func newTestWorker(t *testing.T, st *store.SQLite, caps *provider.Capabilities, sink notify.Sink) *worker.Worker {
	t.Helper()
	w := worker.New(st, provider.NewHolder(caps), sink, "hub-1")
	w.Interval = 10 * time.Millisecond
	return w
}

func TestTickEmpty(t *testing.T) {
	st := newTestStore(t)
	wallet := &fakeWallet{}
	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}, Wallet: wallet}, sink)

	require.NoError(t, w.Tick(context.Background()))
	assert.Zero(t, wallet.calls)
	assertNoOrders(t, sink.success)
}

func TestTickTransfersBatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdateBatch(ctx, []*models.Order{
		readyOrder("ord-1"), readyOrder("ord-2"), readyOrder("ord-3"),
	}))

	wallet := &fakeWallet{}
	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}, Wallet: wallet}, sink)

	require.NoError(t, w.Tick(ctx))

	assert.Equal(t, 1, wallet.calls, "one batched wallet call for the whole tick")
	assert.Len(t, wallet.lastTransfers(), 3)

	notified := waitOrders(t, sink.success)
	assert.Len(t, notified, 3)

	got, err := st.GetMany(ctx, []string{"ord-1", "ord-2", "ord-3"})
	require.NoError(t, err)
	for id, order := range got {
		assert.Equal(t, models.OrderDone, order.Status, id)
		assert.Nil(t, order.Error, id)
		require.NotNil(t, order.TonTransactionID, id)
		assert.Equal(t, "tx-1", *order.TonTransactionID, "batch shares one transaction id")
		assert.Equal(t, models.DefaultRetries-1, order.RetriesLeft, id)
		require.NotNil(t, order.FragmentRequestID, id)
	}
}

func TestTickMissingWallet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdate(ctx, readyOrder("ord-1")))

	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}}, sink)

	require.NoError(t, w.Tick(ctx))

	notified := waitOrders(t, sink.failed)
	assert.Len(t, notified, 1)

	got, err := st.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderError, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrWalletNotProvided, *got.Error)
	assert.Zero(t, got.RetriesLeft)
	assert.Nil(t, got.TonTransactionID)
	assert.True(t, got.Terminal())
}

func TestTickMissingFragment(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdate(ctx, readyOrder("ord-1")))

	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Wallet: &fakeWallet{}}, sink)

	require.NoError(t, w.Tick(ctx))
	waitOrders(t, sink.failed)

	got, err := st.Get(ctx, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrFragmentAPINotProvided, *got.Error)
}

func TestTickWalletFailureThenRetry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdateBatch(ctx, []*models.Order{
		readyOrder("ord-1"), readyOrder("ord-2"), readyOrder("ord-3"),
	}))

	wallet := &fakeWallet{err: errors.New("broadcast failed")}
	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}, Wallet: wallet}, sink)

	require.NoError(t, w.Tick(ctx))
	waitOrders(t, sink.failed)

	got, err := st.GetMany(ctx, nil)
	require.NoError(t, err)
	for id, order := range got {
		assert.Equal(t, models.OrderError, order.Status, id)
		require.NotNil(t, order.Error, id)
		assert.Equal(t, models.ErrUnknown, *order.Error, id)
		assert.Equal(t, models.DefaultRetries-1, order.RetriesLeft, id)
		assert.False(t, order.Terminal(), id)
	}

	// Errored orders with budget left are claimed again on the next tick.
	wallet.mu.Lock()
	wallet.err = nil
	wallet.mu.Unlock()

	require.NoError(t, w.Tick(ctx))
	waitOrders(t, sink.success)

	got, err = st.GetMany(ctx, nil)
	require.NoError(t, err)
	for id, order := range got {
		assert.Equal(t, models.OrderDone, order.Status, id)
		require.NotNil(t, order.TonTransactionID, id)
		assert.Equal(t, "tx-2", *order.TonTransactionID, id)
		assert.Equal(t, models.DefaultRetries-2, order.RetriesLeft, id)
	}
}

func TestTickInsufficientFunds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdate(ctx, readyOrder("ord-1")))

	wallet := &fakeWallet{err: fmt.Errorf("have 5, need 10: %w", ton.ErrInsufficientFunds)}
	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}, Wallet: wallet}, sink)

	require.NoError(t, w.Tick(ctx))
	waitOrders(t, sink.failed)

	got, err := st.Get(ctx, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ErrNotEnoughFunds, *got.Error)
}

func TestTickPrepFailureIsolatesOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdateBatch(ctx, []*models.Order{
		readyOrder("ord-1"), readyOrder("ord-2"),
	}))

	frag := &fakeFragment{initErr: map[string]error{
		"recipient-ord-2": errors.New("fragment 500"),
	}}
	wallet := &fakeWallet{}
	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: frag, Wallet: wallet}, sink)

	require.NoError(t, w.Tick(ctx))
	waitOrders(t, sink.success)

	got, err := st.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDone, got["ord-1"].Status)
	assert.Equal(t, models.OrderError, got["ord-2"].Status)
	require.NotNil(t, got["ord-2"].Error)
	assert.Equal(t, models.ErrUnknown, *got["ord-2"].Error)
	assert.Len(t, wallet.lastTransfers(), 1)

	// Budget not yet exhausted, so no customer-facing error notification.
	assertNoOrders(t, sink.failed)
}

func TestTickPayloadHook(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdate(ctx, readyOrder("ord-1")))

	wallet := &fakeWallet{}
	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}, Wallet: wallet}, sink)
	w.Payload = func(order *models.Order, ref string) (string, error) {
		return "thanks for your purchase\n\n" + ref, nil
	}

	require.NoError(t, w.Tick(ctx))
	waitOrders(t, sink.success)

	transfers := wallet.lastTransfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "thanks for your purchase\n\nRef#test:1", transfers[0].Payload)
}

func TestTickPayloadHookFailureDegrades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.AddOrUpdate(ctx, readyOrder("ord-1")))

	wallet := &fakeWallet{}
	sink := newRecordingSink()
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}, Wallet: wallet}, sink)
	w.Payload = func(order *models.Order, ref string) (string, error) {
		return "", errors.New("template engine down")
	}

	require.NoError(t, w.Tick(ctx))
	waitOrders(t, sink.success)

	transfers := wallet.lastTransfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "Ref#test:1", transfers[0].Payload)

	got, err := st.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderDone, got.Status)
}

func TestRunStop(t *testing.T) {
	st := newTestStore(t)
	w := newTestWorker(t, st, &provider.Capabilities{Fragment: &fakeFragment{}, Wallet: &fakeWallet{}}, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Stop")
	}

	select {
	case <-w.Stopped():
	default:
		t.Fatal("Stopped channel still open after Run returned")
	}

	// Stop is idempotent.
	require.NoError(t, w.Stop(ctx))
}
