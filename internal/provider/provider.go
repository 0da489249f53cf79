// Package provider holds the optional external capabilities the scheduler
// consumes. Capabilities can be swapped at runtime (e.g. when an operator
// changes wallet settings); the scheduler reads the holder once per tick so a
// mid-tick swap is never observed as a torn read.
package provider

import (
	"context"
	"sync/atomic"

	"StarsAutoFill/internal/fragment"
	"StarsAutoFill/internal/ton"
)

// FragmentAPI is the stars-market capability: recipient lookup plus the
// two-call payment-link protocol.
type FragmentAPI interface {
	SearchStarsRecipient(ctx context.Context, username string) (string, error)
	InitBuyStarsRequest(ctx context.Context, recipientID string, quantity int64) (string, error)
	GetBuyStarsLink(ctx context.Context, requestID string) (*fragment.BuyStarsLink, error)
}

// Wallet is the transfer-execution capability.
type Wallet interface {
	Transfer(ctx context.Context, transfers []ton.Transfer) (string, error)
}

// Capabilities is one consistent snapshot of the configured collaborators.
// Either field may be nil when the operator has not configured it.
type Capabilities struct {
	Fragment FragmentAPI
	Wallet   Wallet
}

type Holder struct {
	caps atomic.Pointer[Capabilities]
}

func NewHolder(caps *Capabilities) *Holder {
	h := &Holder{}
	if caps == nil {
		caps = &Capabilities{}
	}
	h.caps.Store(caps)
	return h
}

// Load returns the current snapshot; never nil.
func (h *Holder) Load() *Capabilities {
	return h.caps.Load()
}

// Swap atomically replaces the snapshot.
func (h *Holder) Swap(caps *Capabilities) {
	if caps == nil {
		caps = &Capabilities{}
	}
	h.caps.Store(caps)
}
