// internal/checkout/domain/port/ports.go
package port

import (
	"context"
	"time"

	"bazaar/internal/checkout/domain"
)

// ReserveRequest is the payload for the inventory reserve call.
type ReserveRequest struct {
	ReservationID string
	CartID        string
	UserID        string
	Items         []domain.Item
	TTLSeconds    int
}

// InventoryService is the outbound port to the inventory service. All calls
// are idempotent by reservationId on the receiving side, so coordinator
// retries are safe.
type InventoryService interface {
	Reserve(ctx context.Context, req ReserveRequest) (expiresAt time.Time, err error)
	Commit(ctx context.Context, reservationID string) error
	// Release is the compensating action; an unknown reservation counts as
	// already released.
	Release(ctx context.Context, reservationID string) error
}

// PaymentOrder is the provider-side handle created before capture.
type PaymentOrder struct {
	ProviderOrderID string
	ApproveURL      string
}

// PaymentGateway is the opaque payment provider: create an order, capture
// it, verify its status. The provider's HTTP details stay behind this port.
type PaymentGateway interface {
	Create(ctx context.Context, reservationID string, amount float64, currency string) (PaymentOrder, error)
	Capture(ctx context.Context, providerOrderID string) (captureID string, err error)
	Verify(ctx context.Context, providerOrderID string) (status string, err error)
}

// OrderRecord is what the order recorder persists.
type OrderRecord struct {
	OrderID       string
	ReservationID string
	CaptureID     string
	Items         []domain.Item
	Amount        float64
	Currency      string
	Address       string
	Shipping      string
	UserID        string
}

// OrderRecorder persists the final order. Must return the existing order
// when called twice with the same reservationId.
type OrderRecorder interface {
	Create(ctx context.Context, rec OrderRecord) (orderID string, err error)
}

// NotificationProducer emits checkout lifecycle events. Best-effort: a
// failed publish is logged, never fails the saga.
type NotificationProducer interface {
	CheckoutCompleted(ctx context.Context, order *domain.CheckoutOrder) error
	CheckoutFailed(ctx context.Context, order *domain.CheckoutOrder, reason string) error
}

// DeadLetterStore persists manual-reconciliation records.
type DeadLetterStore interface {
	Save(ctx context.Context, d *domain.DeadLetter) error
}
