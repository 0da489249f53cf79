package fragment

// BuyStarsLink is the on-chain transfer descriptor produced per order:
// destination, amount in nanoton, the raw base64 payload and the expiry.
type BuyStarsLink struct {
	Address    string
	Amount     int64
	RawPayload string
	ValidUntil int64
}

// API response shapes.

type recipientResponse struct {
	Found struct {
		Recipient string `json:"recipient"`
		Name      string `json:"name"`
		Myself    bool   `json:"myself"`
	} `json:"found"`
}

type buyStarsResponse struct {
	RequestID string `json:"req_id"`
	Myself    bool   `json:"myself"`
	ToBot     bool   `json:"to_bot"`
}

type buyStarsLinkResponse struct {
	Transaction struct {
		ValidUntil int64  `json:"validUntil"`
		From       string `json:"from"`
		Messages   []struct {
			Address string `json:"address"`
			Amount  int64  `json:"amount"`
			Payload string `json:"payload"`
		} `json:"messages"`
	} `json:"transaction"`
	ConfirmMethod string `json:"confirm_method"`
}
