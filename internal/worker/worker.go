// Package worker runs the fulfillment scheduler: a single polling loop that
// drives READY orders through payment-link preparation and one batched wallet
// transfer per tick.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"StarsAutoFill/internal/metrics"
	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/notify"
	"StarsAutoFill/internal/provider"
	"StarsAutoFill/internal/store"
)

// ErrStoreWrite wraps a failed order-store write. Store failures are fatal to
// the loop (crash-stop): a supervisor restarts it, and replay is safe because
// claimed orders are persisted as TRANSFERRING before any external call.
var ErrStoreWrite = errors.New("order store write failed")

type Worker struct {
	Store    store.Store
	Provider *provider.Holder
	Sink     notify.Sink
	Payload  notify.PayloadFunc
	Metrics  *metrics.Metrics

	Instance   string
	Interval   time.Duration
	BatchLimit int

	stop    chan struct{}
	stopped chan struct{}
}

func New(st store.Store, holder *provider.Holder, sink notify.Sink, instance string) *Worker {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &Worker{
		Store:      st,
		Provider:   holder,
		Sink:       sink,
		Instance:   instance,
		Interval:   2 * time.Second,
		BatchLimit: store.DefaultReadyLimit,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run executes the scheduler loop until Stop is called, ctx is cancelled, or
// a store write fails. The loop is not reentrant; run exactly one per
// instance. The stopped signal fires only after the in-flight tick finishes.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stopped)
	log.Printf("stars fulfillment worker started (instance=%s interval=%s)", w.Instance, w.Interval)

	for {
		select {
		case <-w.stop:
			log.Printf("stars fulfillment worker stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.Interval):
		}

		if err := w.Tick(ctx); err != nil {
			log.Printf("tick failed fatally: %v", err)
			return err
		}
	}
}

// Stop requests a cooperative shutdown and blocks until the loop has fully
// quiesced (or ctx expires). An in-progress tick is never interrupted.
func (w *Worker) Stop(ctx context.Context) error {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped reports quiescence; closed once Run has returned.
func (w *Worker) Stopped() <-chan struct{} {
	return w.stopped
}

// Tick runs one poll-prepare-transfer cycle.
func (w *Worker) Tick(ctx context.Context) error {
	orders, err := w.Store.GetReady(ctx, w.Instance, w.BatchLimit)
	if err != nil {
		return fmt.Errorf("get ready orders: %w", err)
	}
	w.Metrics.Tick(len(orders))
	if len(orders) == 0 {
		return nil
	}

	caps := w.Provider.Load()

	// Missing configuration fails the whole batch: only an operator can fix
	// it, so burning retries on it would be pointless.
	var missing models.ErrorKind
	switch {
	case caps.Fragment == nil:
		missing = models.ErrFragmentAPINotProvided
	case caps.Wallet == nil:
		missing = models.ErrWalletNotProvided
	}
	if missing != "" {
		log.Printf("capability missing (%s), failing %d orders", missing, len(orders))
		batch := make([]*models.Order, 0, len(orders))
		for _, order := range orders {
			order.SetError(missing)
			order.RetriesLeft = 0
			batch = append(batch, order)
		}
		if err := w.Store.AddOrUpdateBatch(ctx, batch); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		w.Metrics.TransferError(string(missing), len(batch))
		w.dispatch(w.Sink.OnError, batch)
		return nil
	}

	// Claim the batch before any external call: a crash mid-transfer leaves
	// the orders visibly in flight with a consumed retry instead of silently
	// re-claimable as READY.
	batch := make([]*models.Order, 0, len(orders))
	for _, order := range orders {
		order.Status = models.OrderTransferring
		order.RetriesLeft--
		batch = append(batch, order)
	}
	if err := w.Store.AddOrUpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	return w.transfer(ctx, caps, batch)
}

// dispatch fires a notification callback off the scheduler's critical path.
func (w *Worker) dispatch(fn func([]*models.Order), orders []*models.Order) {
	if len(orders) == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("notification callback panicked: %v", r)
				w.Metrics.NotificationDropped()
			}
		}()
		fn(orders)
	}()
}
