package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"StarsAutoFill/internal/models"
	"StarsAutoFill/internal/resolver"
	"StarsAutoFill/internal/store"
)

var (
	ErrMissingOrderID  = errors.New("missing order id")
	ErrInvalidAmount   = errors.New("stars amount must be positive")
	ErrInvalidUsername = errors.New("invalid telegram username")
	ErrNotRefundable   = errors.New("order is not refundable")
	ErrNotCorrectable  = errors.New("order is not waiting for a username")
)

// OrderService is the intake side of the pipeline: it accepts marketplace
// orders, runs username resolution, and exposes the operator corrections the
// scheduler itself never performs.
type OrderService struct {
	Store    store.Store
	Resolver *resolver.Resolver
	Instance string
}

// IngestRequest is one marketplace purchase handed to the pipeline.
type IngestRequest struct {
	OrderID          string
	StarsAmount      int64
	BuyerHandle      string
	ChatID           int64
	TelegramUsername string
}

// Ingest registers a new order and resolves its recipient synchronously. The
// order is persisted as UNPROCESSED first so a crash mid-resolution cannot
// lose it; re-ingesting an existing order id upserts and re-resolves it.
func (s OrderService) Ingest(ctx context.Context, req IngestRequest) (*models.Order, error) {
	if req.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	if req.StarsAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:          req.OrderID,
		StarsAmount:      req.StarsAmount,
		BuyerHandle:      req.BuyerHandle,
		ChatID:           req.ChatID,
		HubInstance:      s.Instance,
		TelegramUsername: req.TelegramUsername,
		Status:           models.OrderUnprocessed,
		RetriesLeft:      models.DefaultRetries,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Store.AddOrUpdate(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	resolved := s.Resolver.Resolve(ctx, *order)
	if err := s.Store.AddOrUpdate(ctx, &resolved); err != nil {
		return nil, fmt.Errorf("persist resolved order: %w", err)
	}
	log.Printf("order %s ingested (stars=%d status=%s)", resolved.OrderID, resolved.StarsAmount, resolved.Status)
	return &resolved, nil
}

// IngestBatch registers several orders at once, resolving them concurrently
// and persisting each stage as one atomic batch write.
func (s OrderService) IngestBatch(ctx context.Context, reqs []IngestRequest) ([]*models.Order, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	orders := make([]*models.Order, 0, len(reqs))
	for _, req := range reqs {
		if req.OrderID == "" {
			return nil, ErrMissingOrderID
		}
		if req.StarsAmount <= 0 {
			return nil, ErrInvalidAmount
		}
		orders = append(orders, &models.Order{
			OrderID:          req.OrderID,
			StarsAmount:      req.StarsAmount,
			BuyerHandle:      req.BuyerHandle,
			ChatID:           req.ChatID,
			HubInstance:      s.Instance,
			TelegramUsername: req.TelegramUsername,
			Status:           models.OrderUnprocessed,
			RetriesLeft:      models.DefaultRetries,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	if err := s.Store.AddOrUpdateBatch(ctx, orders); err != nil {
		return nil, fmt.Errorf("persist orders: %w", err)
	}
	if err := s.Resolver.ResolveBatch(ctx, s.Store, orders); err != nil {
		return nil, fmt.Errorf("resolve orders: %w", err)
	}

	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.OrderID)
	}
	byID, err := s.Store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload orders: %w", err)
	}
	out := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := byID[id]; ok {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s OrderService) Get(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, ErrMissingOrderID
	}
	return s.Store.Get(ctx, orderID)
}

// SetUsername is the operator correction path for orders parked in
// WAITING_FOR_USERNAME: it swaps in the corrected handle and re-runs
// resolution with the order's remaining retry budget intact.
func (s OrderService) SetUsername(ctx context.Context, orderID, username string) (*models.Order, error) {
	if orderID == "" {
		return nil, ErrMissingOrderID
	}
	if !resolver.ValidUsername(username) {
		return nil, ErrInvalidUsername
	}

	order, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderWaitingForUsername && order.Status != models.OrderUnprocessed {
		return nil, ErrNotCorrectable
	}

	order.TelegramUsername = username
	order.RecipientID = nil
	resolved := s.Resolver.Resolve(ctx, *order)
	if err := s.Store.AddOrUpdate(ctx, &resolved); err != nil {
		return nil, fmt.Errorf("persist corrected order: %w", err)
	}
	log.Printf("order %s username corrected to %s (status=%s)", orderID, username, resolved.Status)
	return &resolved, nil
}

// Refund takes an order out of the pipeline before the scheduler claims it.
// Orders already TRANSFERRING or DONE cannot be refunded here; the stars are
// on chain or about to be.
func (s OrderService) Refund(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, ErrMissingOrderID
	}

	order, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case models.OrderUnprocessed, models.OrderWaitingForUsername, models.OrderReady, models.OrderError:
	default:
		return nil, ErrNotRefundable
	}

	order.Status = models.OrderRefunded
	order.RetriesLeft = 0
	if err := s.Store.AddOrUpdate(ctx, order); err != nil {
		return nil, fmt.Errorf("persist refund: %w", err)
	}
	log.Printf("order %s refunded", orderID)
	return order, nil
}
