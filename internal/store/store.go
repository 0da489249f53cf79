package store

import (
	"context"
	"errors"

	"StarsAutoFill/internal/models"
)

// ErrNotFound is returned by Get when no order exists for the id.
var ErrNotFound = errors.New("order not found")

// Store is the durable keyed storage for orders and the single source of
// truth for order state. All writes are upserts keyed by order_id; batch
// writes are atomic as a unit.
type Store interface {
	AddOrUpdate(ctx context.Context, order *models.Order) error
	AddOrUpdateBatch(ctx context.Context, orders []*models.Order) error
	Get(ctx context.Context, orderID string) (*models.Order, error)
	GetMany(ctx context.Context, orderIDs []string, statuses ...models.OrderStatus) (map[string]*models.Order, error)

	// GetReady returns orders eligible for a transfer attempt this tick:
	// status READY, or ERROR with retries_left > 0, scoped to the given hub
	// instance and bounded by limit.
	GetReady(ctx context.Context, instanceID string, limit int) (map[string]*models.Order, error)
}

// DefaultReadyLimit caps the batch size per scheduler tick.
const DefaultReadyLimit = 25
