package notify

import (
	"strings"

	"StarsAutoFill/internal/models"
)

const adText = "Stars delivered automatically by the stars auto-fulfillment service."

// NewPayloadFunc builds the payload-generation hook from operator settings:
// an optional comment template (with {order_id} and {stars} placeholders)
// and an optional ad line, both prepended to the purchase reference.
func NewPayloadFunc(template string, showAd bool) PayloadFunc {
	if template == "" && !showAd {
		return nil
	}
	return func(order *models.Order, ref string) (string, error) {
		var parts []string
		if template != "" {
			text := strings.NewReplacer(
				"{order_id}", order.OrderID,
				"{stars}", formatInt(order.StarsAmount),
			).Replace(template)
			parts = append(parts, text)
		}
		if showAd {
			parts = append(parts, adText)
		}
		parts = append(parts, ref)
		return strings.Join(parts, "\n\n"), nil
	}
}

func formatInt(v int64) string {
	const digits = "0123456789"
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%10]
		v /= 10
	}
	return string(buf[i:])
}
