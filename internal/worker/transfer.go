package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"StarsAutoFill/internal/fragment"
	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/provider"
	"StarsAutoFill/internal/ton"
)

// transfer prepares a payment-link descriptor per order and submits all
// successfully prepared orders to the wallet as one multi-message transfer.
func (w *Worker) transfer(ctx context.Context, caps *provider.Capabilities, orders []*models.Order) error {
	prepared := make([]*models.Order, 0, len(orders))
	descriptors := make([]ton.Transfer, 0, len(orders))
	var errored []*models.Order

	for _, order := range orders {
		desc, err := w.prepare(ctx, caps.Fragment, order)
		if err != nil {
			log.Printf("payment link failed for order %s (telegram: %s): %v",
				order.OrderID, order.TelegramUsername, err)
			order.SetError(models.ErrUnknown)
			if err := w.Store.AddOrUpdate(ctx, order); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreWrite, err)
			}
			w.Metrics.TransferError(string(models.ErrUnknown), 1)
			errored = append(errored, order)
			continue
		}
		prepared = append(prepared, order)
		descriptors = append(descriptors, *desc)
	}

	// Preparation failures with budget left re-enter the pool next tick;
	// only exhausted ones are worth a customer-facing notification.
	var terminal []*models.Order
	for _, order := range errored {
		if order.RetriesLeft <= 0 {
			terminal = append(terminal, order)
		}
	}
	w.dispatch(w.Sink.OnError, terminal)

	if len(prepared) == 0 {
		return nil
	}

	txID, err := caps.Wallet.Transfer(ctx, descriptors)
	if err != nil {
		ids := make([]string, 0, len(prepared))
		for _, order := range prepared {
			ids = append(ids, order.OrderID)
		}
		log.Printf("wallet transfer failed for orders %v: %v", ids, err)

		kind := classifyTransferError(err)
		for _, order := range prepared {
			order.SetError(kind)
		}
		if err := w.Store.AddOrUpdateBatch(ctx, prepared); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		w.Metrics.TransferError(string(kind), len(prepared))
		w.dispatch(w.Sink.OnError, prepared)
		return nil
	}

	for _, order := range prepared {
		id := txID
		order.Status = models.OrderDone
		order.Error = nil
		order.TonTransactionID = &id
	}
	if err := w.Store.AddOrUpdateBatch(ctx, prepared); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	ids := make([]string, 0, len(prepared))
	for i, order := range prepared {
		ids = append(ids, order.OrderID)
		w.Metrics.OrderDone(descriptors[i].Amount)
	}
	log.Printf("transferred TON for orders %v, tx=%s", ids, txID)
	w.dispatch(w.Sink.OnSuccess, prepared)
	return nil
}

// prepare runs the two-call payment-link protocol for one order and builds
// its transfer descriptor, routing the cleaned purchase reference through the
// payload hook when one is configured.
func (w *Worker) prepare(ctx context.Context, api provider.FragmentAPI, order *models.Order) (*ton.Transfer, error) {
	if order.RecipientID == nil {
		return nil, errors.New("order has no resolved recipient")
	}

	requestID, err := api.InitBuyStarsRequest(ctx, *order.RecipientID, order.StarsAmount)
	if err != nil {
		return nil, fmt.Errorf("init buy stars request: %w", err)
	}
	order.FragmentRequestID = &requestID

	link, err := api.GetBuyStarsLink(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get buy stars link: %w", err)
	}

	payload, err := fragment.ClearPayload(link.RawPayload)
	if err != nil {
		return nil, fmt.Errorf("clear payload: %w", err)
	}

	if w.Payload != nil {
		if decorated, err := w.Payload(order, payload); err != nil {
			// Hook failure degrades to the bare reference.
			log.Printf("payload hook failed for order %s: %v", order.OrderID, err)
		} else {
			payload = decorated
		}
	}

	return &ton.Transfer{
		Address:    link.Address,
		Amount:     link.Amount,
		Payload:    payload,
		ValidUntil: link.ValidUntil,
	}, nil
}

func classifyTransferError(err error) models.ErrorKind {
	switch {
	case errors.Is(err, ton.ErrInsufficientFunds):
		return models.ErrNotEnoughFunds
	case errors.Is(err, ton.ErrConfirmationTimeout):
		return models.ErrTransfer
	default:
		return models.ErrUnknown
	}
}
