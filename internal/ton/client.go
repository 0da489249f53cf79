// Package ton wires the on-chain side of fulfillment: a tonapi HTTP client,
// an optional websocket account stream, and the Wallet that executes batched
// transfers through an external signer.
package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransactionNotFound means tonapi does not (yet) know a transaction for
// the given message hash.
var ErrTransactionNotFound = errors.New("transaction not found")

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://tonapi.io"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Seqno(ctx context.Context, address string) (uint32, error) {
	var resp struct {
		Seqno uint32 `json:"seqno"`
	}
	if err := c.getJSON(ctx, "/v2/wallet/"+address+"/seqno", &resp); err != nil {
		return 0, err
	}
	return resp.Seqno, nil
}

func (c *Client) Balance(ctx context.Context, address string) (int64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := c.getJSON(ctx, "/v2/wallet/"+address, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// SendMessage broadcasts a signed external message (base64 boc).
func (c *Client) SendMessage(ctx context.Context, boc string) error {
	body, err := json.Marshal(map[string]string{"boc": boc})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/blockchain/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError("send message", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// TransactionByMessageHash looks up the on-chain transaction produced by an
// external message. Returns ErrTransactionNotFound while the message is still
// in flight.
func (c *Client) TransactionByMessageHash(ctx context.Context, messageHash string) (*Transaction, error) {
	var tx Transaction
	err := c.getJSON(ctx, "/v2/blockchain/messages/"+messageHash+"/transaction", &tx)
	if err != nil {
		var statusErr *APIError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

type Transaction struct {
	Hash    string `json:"hash"`
	LT      int64  `json:"lt"`
	Success bool   `json:"success"`
	InMsg   struct {
		Hash string `json:"hash"`
	} `json:"in_msg"`
}

type APIError struct {
	Op     string
	Status int
	Text   string
}

func (e *APIError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("tonapi %s: status %d: %s", e.Op, e.Status, e.Text)
	}
	return fmt.Sprintf("tonapi %s: status %d", e.Op, e.Status)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError("GET "+path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func httpError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &APIError{Op: op, Status: resp.StatusCode, Text: msg}
}
