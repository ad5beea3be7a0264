package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/norun9/boutique-checkout/src/money"
	"github.com/segmentio/kafka-go"
)

// Order event types.
const (
	EventOrderPlaced    = "OrderPlaced"
	EventCheckoutFailed = "CheckoutFailed"
)

// OrderEvent records the outcome of a checkout. A CheckoutFailed event with
// Charged set means the card was charged but the order did not complete;
// nothing refunds it, so consumers of these events are where compensation
// would have to happen.
type OrderEvent struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"`
	OrderID       string       `json:"orderId"`
	UserID        string       `json:"userId"`
	Currency      string       `json:"currency"`
	Total         *money.Money `json:"total,omitempty"`
	TransactionID string       `json:"transactionId,omitempty"`
	TrackingID    string       `json:"trackingId,omitempty"`
	Charged       bool         `json:"charged"`
	Step          Step         `json:"step,omitempty"`
	Kind          string       `json:"kind,omitempty"`
	Error         string       `json:"error,omitempty"`
	OccurredAt    time.Time    `json:"occurredAt"`
}

// OrderEvents receives checkout outcomes.
type OrderEvents interface {
	Publish(ctx context.Context, evt OrderEvent) error
}

// NoopOrderEvents drops every event.
type NoopOrderEvents struct{}

func (NoopOrderEvents) Publish(context.Context, OrderEvent) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderEvents publishes events as JSON messages keyed by user ID, so
// every event of one user lands on the same partition.
type KafkaOrderEvents struct {
	writer messageWriter
}

// NewKafkaOrderEvents returns a publisher writing to topic on brokers.
func NewKafkaOrderEvents(brokers []string, topic string) *KafkaOrderEvents {
	return &KafkaOrderEvents{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		MaxAttempts:            3,
		WriteTimeout:           defaultPublishTimeout,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

func (k *KafkaOrderEvents) Publish(ctx context.Context, evt OrderEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.UserID),
		Value: data,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	})
}

// Close flushes pending messages.
func (k *KafkaOrderEvents) Close() error {
	return k.writer.Close()
}

func newOrderEvent(typ, orderID, userID, currency string) OrderEvent {
	return OrderEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		OrderID:    orderID,
		UserID:     userID,
		Currency:   currency,
		OccurredAt: time.Now().UTC(),
	}
}
