package ton

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// AccountStream subscribes to the tonapi websocket for transactions touching
// the wallet account. It is a confirmation fast path only: the wallet still
// polls, the stream just wakes it early.
type AccountStream struct {
	Endpoint string
	Account  string

	events chan string
}

func NewAccountStream(endpoint, account string) *AccountStream {
	return &AccountStream{
		Endpoint: endpoint,
		Account:  account,
		events:   make(chan string, 16),
	}
}

// Events delivers the transaction hash of every observed account event.
func (s *AccountStream) Events() <-chan string {
	return s.events
}

// Run keeps the subscription alive until ctx is cancelled, reconnecting with
// a short pause after any failure.
func (s *AccountStream) Run(ctx context.Context) {
	if s.Endpoint == "" {
		log.Printf("ws disabled: tonapi ws_endpoint is empty")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			log.Printf("ws stream failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (s *AccountStream) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, s.Endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("ws connected %s", s.Endpoint)

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "subscribe_account",
		"params":  []string{s.Account},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		hash, ok, err := parseAccountEvent(msg)
		if err != nil {
			log.Printf("ws parse failed: %v", err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case s.events <- hash:
		default:
			// Slow consumer; polling covers the miss.
		}
	}
}

func parseAccountEvent(msg []byte) (string, bool, error) {
	var env struct {
		Method string `json:"method"`
		Params struct {
			TxHash    string `json:"tx_hash"`
			AccountID string `json:"account_id"`
		} `json:"params"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return "", false, err
	}
	if env.Method != "account_transaction" || env.Params.TxHash == "" {
		return "", false, nil
	}
	return env.Params.TxHash, true, nil
}
