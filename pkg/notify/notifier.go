// Package notify publishes registration events for the mail fan-out workers.
// Delivery is best-effort: callers log and ignore failures so the primary
// transaction's outcome never depends on the broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const registrationQueue = "purchase.registered"

// RegistrationEvent carries everything the mail workers need to send the
// purchaser confirmation and the operator notification.
type RegistrationEvent struct {
	EventID      string    `json:"eventId"`
	UserID       uint64    `json:"userId"`
	PurchaseID   uint64    `json:"purchaseId"`
	Email        string    `json:"email"`
	ContactName  string    `json:"contactName"`
	MasterHives  int       `json:"masterHives"`
	NormalHives  int       `json:"normalHives"`
	TotalAmount  float64   `json:"totalAmount"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Notifier publishes registration events.
type Notifier interface {
	PurchaseRegistered(ctx context.Context, event RegistrationEvent) error
}

// AMQPNotifier publishes events to a durable RabbitMQ queue. A connection is
// opened per publish; registration volume does not justify a channel pool.
type AMQPNotifier struct {
	url string
}

// NewAMQPNotifier builds a notifier for the given broker URL.
func NewAMQPNotifier(url string) *AMQPNotifier {
	return &AMQPNotifier{url: url}
}

// PurchaseRegistered publishes the event as a persistent JSON message.
func (n *AMQPNotifier) PurchaseRegistered(ctx context.Context, event RegistrationEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(registrationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", registrationQueue, false, false, pub); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}
