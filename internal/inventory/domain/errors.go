// internal/inventory/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// FailKind tags the reservation failure taxonomy. String values double as
// the wire-level error codes on the internal HTTP surface.
type FailKind string

const (
	FailInvalidItem       FailKind = "invalid_item"
	FailProductNotFound   FailKind = "product_not_found"
	FailInsufficientStock FailKind = "INSUFFICIENT_STOCK"
	FailLocked            FailKind = "product_locked"
)

// ReservationError is the tagged failure result of a reserve attempt. The
// structured fields replace ad hoc error payloads: handlers render them into
// the HTTP envelope, callers branch on Kind.
type ReservationError struct {
	Kind      FailKind
	ProductID string
	Available int64
	Requested int64
	Message   string
}

func (e *ReservationError) Error() string {
	switch e.Kind {
	case FailInsufficientStock:
		return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
	case FailLocked:
		return fmt.Sprintf("product %s is locked: %s", e.ProductID, e.Message)
	case FailProductNotFound:
		return fmt.Sprintf("product %s not found", e.ProductID)
	default:
		return fmt.Sprintf("invalid item %s: %s", e.ProductID, e.Message)
	}
}

// AsReservationError unwraps err into a *ReservationError if it is one.
func AsReservationError(err error) (*ReservationError, bool) {
	var re *ReservationError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// NotActiveError reports a commit against a reservation that already reached
// a terminal status.
type NotActiveError struct {
	Status ReservationStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("reservation is not active (status %s)", e.Status)
}

var (
	// ErrReservationNotFound: no reservation record exists for the id.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrStockNotFound: no ledger row exists for the product.
	ErrStockNotFound = errors.New("stock record not found")

	// ErrLockHeld: lock acquisition exhausted its retries while another
	// owner held the key. Retryable by the caller.
	ErrLockHeld = errors.New("product lock held by another reservation")
)
