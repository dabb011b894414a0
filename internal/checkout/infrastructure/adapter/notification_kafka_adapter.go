// internal/checkout/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"bazaar/internal/checkout/domain"
	"bazaar/internal/pkg/mq"
)

// checkoutEvent is the wire shape on the checkout-events topic.
type checkoutEvent struct {
	Type          string    `json:"type"` // checkout_completed | checkout_failed
	OrderID       string    `json:"orderId"`
	ReservationID string    `json:"reservationId"`
	UserID        string    `json:"userId,omitempty"`
	State         string    `json:"state"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// NotificationKafkaAdapter implements port.NotificationProducer by
// publishing lifecycle events downstream consumers (mail, ops dashboards)
// subscribe to.
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

func (a *NotificationKafkaAdapter) CheckoutCompleted(ctx context.Context, order *domain.CheckoutOrder) error {
	return a.publish(ctx, checkoutEvent{
		Type:          "checkout_completed",
		OrderID:       order.OrderID,
		ReservationID: order.ReservationID,
		UserID:        order.UserID,
		State:         string(order.State),
		At:            time.Now(),
	})
}

func (a *NotificationKafkaAdapter) CheckoutFailed(ctx context.Context, order *domain.CheckoutOrder, reason string) error {
	return a.publish(ctx, checkoutEvent{
		Type:          "checkout_failed",
		OrderID:       order.OrderID,
		ReservationID: order.ReservationID,
		UserID:        order.UserID,
		State:         string(order.State),
		Reason:        reason,
		At:            time.Now(),
	})
}

func (a *NotificationKafkaAdapter) publish(ctx context.Context, event checkoutEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal checkout event")
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.ReservationID), eventBytes)
}

// Close flushes and closes the underlying Kafka writer.
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
