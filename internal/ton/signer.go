package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Transfer is one outgoing message of a wallet transaction: destination,
// amount in nanoton, text payload and the unix expiry of the whole message.
type Transfer struct {
	Address    string
	Amount     int64
	Payload    string
	ValidUntil int64
}

// SignedMessage is a signed external message ready for broadcast. Hash is the
// hash of the in-message body, used to match the confirmed transaction.
type SignedMessage struct {
	BOC  string `json:"boc"`
	Hash string `json:"hash"`
}

// Signer turns a seqno plus a set of transfers into a signed external
// message. Key handling lives outside this service.
type Signer interface {
	Address() string
	Sign(ctx context.Context, seqno uint32, validUntil int64, transfers []Transfer) (*SignedMessage, error)
}

// RemoteSigner delegates message construction and signing to a co-located
// signer service that holds the wallet key.
type RemoteSigner struct {
	baseURL string
	address string
	client  *http.Client
}

func NewRemoteSigner(baseURL, address string) *RemoteSigner {
	return &RemoteSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		address: address,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RemoteSigner) Address() string {
	return s.address
}

func (s *RemoteSigner) Sign(ctx context.Context, seqno uint32, validUntil int64, transfers []Transfer) (*SignedMessage, error) {
	type signMessage struct {
		Address string `json:"address"`
		Amount  int64  `json:"amount"`
		Payload string `json:"payload"`
	}
	reqBody := struct {
		Seqno      uint32        `json:"seqno"`
		ValidUntil int64         `json:"valid_until"`
		Messages   []signMessage `json:"messages"`
	}{Seqno: seqno, ValidUntil: validUntil}
	for _, t := range transfers {
		reqBody.Messages = append(reqBody.Messages, signMessage{
			Address: t.Address,
			Amount:  t.Amount,
			Payload: t.Payload,
		})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError("sign", resp)
	}

	var signed SignedMessage
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return nil, err
	}
	return &signed, nil
}
