// Package fragment talks to the fragment.com stars API: recipient lookup and
// the two-step buy-stars payment-link protocol.
package fragment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	cookies string
	hash    string
	client  *http.Client
}

func NewClient(baseURL, cookies, hash string) *Client {
	if baseURL == "" {
		baseURL = "https://fragment.com"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		cookies: cookies,
		hash:    hash,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SearchStarsRecipient resolves a telegram username to a fragment recipient
// id. A *ResponseError means the API rejected the query (username unknown);
// anything else is a transport or parsing fault.
func (c *Client) SearchStarsRecipient(ctx context.Context, username string) (string, error) {
	form := url.Values{}
	form.Set("query", strings.TrimPrefix(username, "@"))
	form.Set("quantity", "")

	var resp recipientResponse
	if err := c.post(ctx, "searchStarsRecipient", form, &resp); err != nil {
		return "", err
	}
	if resp.Found.Recipient == "" {
		return "", &ParsingError{Method: "searchStarsRecipient"}
	}
	return resp.Found.Recipient, nil
}

// InitBuyStarsRequest starts a stars purchase and returns the request id used
// to fetch the transfer descriptor.
func (c *Client) InitBuyStarsRequest(ctx context.Context, recipientID string, quantity int64) (string, error) {
	form := url.Values{}
	form.Set("recipient", recipientID)
	form.Set("quantity", strconv.FormatInt(quantity, 10))

	var resp buyStarsResponse
	if err := c.post(ctx, "initBuyStarsRequest", form, &resp); err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		return "", &ParsingError{Method: "initBuyStarsRequest"}
	}
	return resp.RequestID, nil
}

// GetBuyStarsLink fetches the on-chain transfer descriptor for a previously
// initialized request.
func (c *Client) GetBuyStarsLink(ctx context.Context, requestID string) (*BuyStarsLink, error) {
	form := url.Values{}
	form.Set("id", requestID)
	form.Set("show_sender", "0")
	form.Set("transaction", "1")

	var resp buyStarsLinkResponse
	if err := c.post(ctx, "getBuyStarsLink", form, &resp); err != nil {
		return nil, err
	}
	if len(resp.Transaction.Messages) == 0 {
		return nil, &ParsingError{Method: "getBuyStarsLink"}
	}

	msg := resp.Transaction.Messages[0]
	return &BuyStarsLink{
		Address:    msg.Address,
		Amount:     msg.Amount,
		RawPayload: msg.Payload,
		ValidUntil: resp.Transaction.ValidUntil,
	}, nil
}

func (c *Client) post(ctx context.Context, method string, form url.Values, out any) error {
	form.Set("method", method)

	endpoint := c.baseURL + "/api?hash=" + url.QueryEscape(c.hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/stars/buy")
	if c.cookies != "" {
		req.Header.Set("Cookie", c.cookies)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &ParsingError{Method: method}
	}
	if envelope.Error != "" {
		return &ResponseError{Method: method, Text: envelope.Error}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ParsingError{Method: method}
	}
	return nil
}

// ResponseError is an API-level rejection: the request reached fragment and
// it answered with an error field (e.g. an unknown username).
type ResponseError struct {
	Method string
	Text   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("fragment %s: %s", e.Method, e.Text)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Method string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fragment %s: http status %d", e.Method, e.Status)
}

// ParsingError means the response body did not match the expected shape.
type ParsingError struct {
	Method string
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("fragment %s: unable to parse response", e.Method)
}

// IsResponseError reports whether err is an API-level rejection rather than a
// transient transport fault.
func IsResponseError(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr)
}
