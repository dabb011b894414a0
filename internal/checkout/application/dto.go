// internal/checkout/application/dto.go
package application

import "bazaar/internal/checkout/domain"

// CheckoutRequest is the checkout use case input. ReservationID is supplied
// by the caller and acts as the idempotency key for every downstream call.
type CheckoutRequest struct {
	ReservationID string        `json:"reservationId"`
	CartID        string        `json:"cartId,omitempty"`
	UserID        string        `json:"userId,omitempty"`
	Items         []domain.Item `json:"items"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	Address       string        `json:"address,omitempty"`
	Shipping      string        `json:"shipping,omitempty"`
}

// CheckoutResponse is returned when the saga completes.
type CheckoutResponse struct {
	OrderID       string           `json:"orderId"`
	ReservationID string           `json:"reservationId"`
	CaptureID     string           `json:"captureId"`
	State         domain.SagaState `json:"state"`
}
