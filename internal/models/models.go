package models

import "time"

type OrderStatus string

const (
	OrderUnprocessed        OrderStatus = "UNPROCESSED"
	OrderWaitingForUsername OrderStatus = "WAITING_FOR_USERNAME"
	OrderReady              OrderStatus = "READY"
	OrderTransferring       OrderStatus = "TRANSFERRING"
	OrderDone               OrderStatus = "DONE"
	OrderRefunded           OrderStatus = "REFUNDED"
	OrderError              OrderStatus = "ERROR"
)

// ErrorKind classifies why an order ended up in ERROR.
type ErrorKind string

const (
	ErrUnableToFetchUsername  ErrorKind = "UNABLE_TO_FETCH_USERNAME"
	ErrFragmentAPINotProvided ErrorKind = "FRAGMENT_API_NOT_PROVIDED"
	ErrWalletNotProvided      ErrorKind = "WALLET_NOT_PROVIDED"
	ErrNotEnoughFunds         ErrorKind = "NOT_ENOUGH_FUNDS"
	ErrTransfer               ErrorKind = "TRANSFER_ERROR"
	ErrUnknown                ErrorKind = "UNKNOWN"
)

// DefaultRetries is the automatic transfer attempt budget for a new order.
const DefaultRetries = 3

// Order is one customer purchase of Telegram Stars awaiting on-chain
// fulfillment. OrderID comes from the marketplace and is globally unique;
// HubInstance partitions orders between deployments sharing one store.
type Order struct {
	OrderID     string
	StarsAmount int64
	BuyerHandle string
	ChatID      int64
	HubInstance string

	TelegramUsername  string
	RecipientID       *string
	Status            OrderStatus
	Error             *ErrorKind
	FragmentRequestID *string
	TonTransactionID  *string
	RetriesLeft       int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the scheduler will never pick this order up again.
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderDone, OrderRefunded:
		return true
	case OrderError:
		return o.RetriesLeft <= 0
	}
	return false
}

// SetError moves the order to ERROR with the given kind.
func (o *Order) SetError(kind ErrorKind) {
	k := kind
	o.Status = OrderError
	o.Error = &k
}
