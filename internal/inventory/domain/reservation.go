// internal/inventory/domain/reservation.go
package domain

import (
	"time"
)

// ReservationStatus is the lifecycle state of a reservation. Transitions are
// active→committed or active→released only; both targets are terminal.
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusCommitted ReservationStatus = "committed"
	StatusReleased  ReservationStatus = "released"
)

// ReservationItem is one product line held by a reservation.
type ReservationItem struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
	VariantID string `json:"variantId,omitempty"`
}

// Reservation is a provisional hold on stock tied to one checkout attempt.
// ID is caller-supplied and doubles as the idempotency key across the whole
// checkout flow. Records are never physically deleted.
type Reservation struct {
	ID        string
	UserID    string // empty for guest checkout
	CartID    string
	Items     []ReservationItem
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewReservation creates an active reservation holding items for ttl.
func NewReservation(id, userID, cartID string, items []ReservationItem, ttl time.Duration) *Reservation {
	now := time.Now()
	return &Reservation{
		ID:        id,
		UserID:    userID,
		CartID:    cartID,
		Items:     items,
		Status:    StatusActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LockOwner derives the advisory lock owner token for this reservation.
func (r *Reservation) LockOwner() string {
	return LockOwnerForReservation(r.ID)
}

// LockOwnerForReservation builds the opaque owner token written into the
// per-product lock key.
func LockOwnerForReservation(reservationID string) string {
	return "res-" + reservationID
}

// ReservationIDFromOwner inverts LockOwnerForReservation. ok is false when
// the token does not carry the expected prefix.
func ReservationIDFromOwner(owner string) (string, bool) {
	const prefix = "res-"
	if len(owner) <= len(prefix) || owner[:len(prefix)] != prefix {
		return "", false
	}
	return owner[len(prefix):], true
}

// Expired reports whether the hold has outlived its TTL at the given time.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
