package ton

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInsufficientFunds is surfaced when the account cannot cover the
	// batched transfer amounts plus fees.
	ErrInsufficientFunds = errors.New("insufficient wallet funds")

	// ErrConfirmationTimeout means the broadcast message was not observed
	// on-chain before its valid_until expiry.
	ErrConfirmationTimeout = errors.New("transfer confirmation timed out")
)

// API is the slice of the tonapi client the wallet needs.
type API interface {
	Seqno(ctx context.Context, address string) (uint32, error)
	Balance(ctx context.Context, address string) (int64, error)
	SendMessage(ctx context.Context, boc string) error
	TransactionByMessageHash(ctx context.Context, messageHash string) (*Transaction, error)
}

// Wallet executes one or more transfers atomically as a single signed
// message. Submission is strictly serialized: the account seqno increases
// monotonically and concurrent broadcasts would race on it.
type Wallet struct {
	api    API
	signer Signer
	stream *AccountStream

	pollInterval time.Duration
	mu           sync.Mutex
}

func NewWallet(api API, signer Signer, stream *AccountStream) *Wallet {
	return &Wallet{
		api:          api,
		signer:       signer,
		stream:       stream,
		pollInterval: time.Second,
	}
}

func (w *Wallet) Address() string {
	return w.signer.Address()
}

func (w *Wallet) Balance(ctx context.Context) (int64, error) {
	return w.api.Balance(ctx, w.signer.Address())
}

// Transfer signs and broadcasts all transfers as one message, waits for the
// transaction to land and returns its id. Callers block until any in-flight
// transfer completes.
func (w *Wallet) Transfer(ctx context.Context, transfers []Transfer) (string, error) {
	if len(transfers) == 0 {
		return "", errors.New("no transfers given")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var total int64
	validUntil := transfers[0].ValidUntil
	for _, t := range transfers {
		total += t.Amount
		if t.ValidUntil > validUntil {
			validUntil = t.ValidUntil
		}
	}

	balance, err := w.api.Balance(ctx, w.signer.Address())
	if err == nil && balance < total {
		return "", fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, total)
	}

	seqno, err := w.api.Seqno(ctx, w.signer.Address())
	if err != nil {
		return "", fmt.Errorf("get seqno: %w", err)
	}

	signed, err := w.signer.Sign(ctx, seqno, validUntil, transfers)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}

	if err := w.api.SendMessage(ctx, signed.BOC); err != nil {
		if isExitCodeError(err, -13) {
			return "", fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return "", fmt.Errorf("broadcast transfer: %w", err)
	}

	return w.waitForTransfer(ctx, signed.Hash, validUntil)
}

// waitForTransfer blocks until the transaction produced by the message shows
// up, using the websocket account stream as a wake-up when available and
// falling back to plain polling. The wait is bounded by validUntil.
func (w *Wallet) waitForTransfer(ctx context.Context, messageHash string, validUntil int64) (string, error) {
	var events <-chan string
	if w.stream != nil {
		events = w.stream.Events()
	}

	for {
		tx, err := w.api.TransactionByMessageHash(ctx, messageHash)
		if err == nil {
			return tx.Hash, nil
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			// Transient lookup faults only delay confirmation.
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}

		if time.Now().Unix() > validUntil {
			return "", fmt.Errorf("%w: message %s", ErrConfirmationTimeout, messageHash)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-events:
		case <-time.After(w.pollInterval):
		}
	}
}

// tonapi reports TVM failures with "exit code N" in the error text.
func isExitCodeError(err error, code int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Text, fmt.Sprintf("exit code %d", code))
}
