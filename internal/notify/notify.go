// Package notify delivers fulfillment outcomes to customers and operators.
// Sinks are fire-and-forget: the scheduler dispatches asynchronously and a
// failing sink never propagates back into the fulfillment loop.
package notify

import (
	"StarsAutoFill/internal/models"
)

// Sink receives terminal outcomes for sets of orders.
type Sink interface {
	OnSuccess(orders []*models.Order)
	OnError(orders []*models.Order)
}

// PayloadFunc is the optional payload-generation hook: it may decorate the
// purchase reference attached to the on-chain transfer. Returning an error
// degrades to the undecorated reference.
type PayloadFunc func(order *models.Order, ref string) (string, error)

// Nop discards all notifications.
type Nop struct{}

func (Nop) OnSuccess([]*models.Order) {}
func (Nop) OnError([]*models.Order)   {}
