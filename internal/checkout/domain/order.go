// internal/checkout/domain/order.go
package domain

import (
	"errors"
	"time"
)

// SagaState tracks how far a checkout has progressed. The success path is
// STARTED → RESERVED → PAYMENT_CREATED → CAPTURED → INVENTORY_COMMITTED →
// ORDER_CREATED; COMPENSATED and MANUAL_REVIEW are the failure terminals.
type SagaState string

const (
	StateStarted            SagaState = "STARTED"
	StateReserved           SagaState = "RESERVED"
	StatePaymentCreated     SagaState = "PAYMENT_CREATED"
	StateCaptured           SagaState = "CAPTURED"
	StateInventoryCommitted SagaState = "INVENTORY_COMMITTED"
	StateOrderCreated       SagaState = "ORDER_CREATED"
	StateCompensated        SagaState = "COMPENSATED"
	StateManualReview       SagaState = "MANUAL_REVIEW"
)

// Item is one product line in a checkout.
type Item struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
	VariantID string `json:"variantId,omitempty"`
}

// CheckoutOrder is the saga's working aggregate. ReservationID is the
// caller-supplied idempotency key shared with every downstream call; OrderID
// is minted by the coordinator.
type CheckoutOrder struct {
	OrderID       string
	ReservationID string
	CartID        string
	UserID        string // empty for guest checkout
	Items         []Item
	Amount        float64
	Currency      string
	Address       string
	Shipping      string

	State           SagaState
	ProviderOrderID string
	CaptureID       string
	ExpiresAt       time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCheckoutOrder validates required fields and builds the aggregate.
func NewCheckoutOrder(orderID, reservationID, cartID, userID string, items []Item, amount float64, currency string) (*CheckoutOrder, error) {
	if orderID == "" || reservationID == "" || len(items) == 0 {
		return nil, errors.New("cannot create checkout order with empty required fields")
	}
	if amount <= 0 || currency == "" {
		return nil, errors.New("checkout order requires a positive amount and a currency")
	}
	now := time.Now()
	return &CheckoutOrder{
		OrderID:       orderID,
		ReservationID: reservationID,
		CartID:        cartID,
		UserID:        userID,
		Items:         items,
		Amount:        amount,
		Currency:      currency,
		State:         StateStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Advance moves the saga forward.
func (o *CheckoutOrder) Advance(state SagaState) {
	o.State = state
	o.UpdatedAt = time.Now()
}
