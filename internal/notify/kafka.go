package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"StarsAutoFill/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// OrderEvent is the wire shape published per order outcome.
type OrderEvent struct {
	EventID     string `json:"event_id"`
	OrderID     string `json:"order_id"`
	BuyerHandle string `json:"buyer_handle"`
	ChatID      int64  `json:"chat_id"`
	StarsAmount int64  `json:"stars_amount"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	TxID        string `json:"ton_transaction_id,omitempty"`
}

// Kafka publishes order outcome events; downstream bots consume them to
// message the customer and alert operators.
type Kafka struct {
	writer *kafka.Writer
	topic  string
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
		topic: topic,
	}
}

func (k *Kafka) OnSuccess(orders []*models.Order) {
	k.publish(orders)
}

func (k *Kafka) OnError(orders []*models.Order) {
	k.publish(orders)
}

func (k *Kafka) publish(orders []*models.Order) {
	if len(orders) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(orders))
	now := time.Now()
	for _, order := range orders {
		event := OrderEvent{
			EventID:     uuid.NewString(),
			OrderID:     order.OrderID,
			BuyerHandle: order.BuyerHandle,
			ChatID:      order.ChatID,
			StarsAmount: order.StarsAmount,
			Status:      string(order.Status),
		}
		if order.Error != nil {
			event.Error = string(*order.Error)
		}
		if order.TonTransactionID != nil {
			event.TxID = *order.TonTransactionID
		}

		value, err := json.Marshal(event)
		if err != nil {
			log.Printf("marshal order event %s failed: %v", order.OrderID, err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(order.OrderID),
			Value: value,
			Time:  now,
			Topic: k.topic,
		})
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		log.Printf("publish %d order events failed: %v", len(msgs), err)
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
