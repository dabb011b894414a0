// internal/inventory/domain/port/ports.go
package port

import (
	"context"
	"time"

	"bazaar/internal/inventory/domain"
)

// StockLedger is the atomic per-product stock accounting. Reserve is the
// single linearization point that prevents oversell; everything else in the
// inventory service is advisory around it.
type StockLedger interface {
	// Reserve conditionally increments reserved by qty when
	// stock - reserved >= qty. Returns false (no error) when the condition
	// fails: that is the authoritative INSUFFICIENT_STOCK signal.
	Reserve(ctx context.Context, productID string, qty int64) (bool, error)

	// Release decrements reserved by qty, clamped at zero. Compensating
	// action; never fails on underflow.
	Release(ctx context.Context, productID string, qty int64) error

	// Commit permanently deducts: decrements both stock and reserved by
	// qty. Only valid from an active reservation.
	Commit(ctx context.Context, productID string, qty int64) error

	// Get loads the ledger row, or domain.ErrStockNotFound.
	Get(ctx context.Context, productID string) (*domain.StockRecord, error)
}

// LockManager is the advisory per-product lease lock. It reduces contention
// on the ledger's conditional update and makes the current holder
// inspectable; it is not a correctness mechanism.
type LockManager interface {
	// Acquire writes owner under the product's lock key with a lease TTL,
	// stealing the key when its current owner's reservation is no longer
	// active or has expired. Returns domain.ErrLockHeld after bounded
	// retries.
	Acquire(ctx context.Context, productID, owner string, ttl time.Duration) error

	// Release deletes the lock key only if owner still holds it.
	Release(ctx context.Context, productID, owner string) error
}

// ReservationStore persists reservation attempts and their terminal outcome.
type ReservationStore interface {
	Create(ctx context.Context, r *domain.Reservation) error
	// Get returns domain.ErrReservationNotFound for unknown ids.
	Get(ctx context.Context, reservationID string) (*domain.Reservation, error)
	// UpdateStatus claims the active→status transition. Exactly one caller
	// wins a race; the loser gets *domain.NotActiveError carrying the status
	// that won. Unknown ids return domain.ErrReservationNotFound.
	UpdateStatus(ctx context.Context, reservationID string, status domain.ReservationStatus) error
	// FindExpiredActive lists ids of active reservations whose expiry
	// passed before now, up to limit. Used by the expiry sweeper.
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// ReservationStatusLookup is the narrow view of the reservation store the
// lock manager needs for its steal check. Keeping it separate lets the lock
// manager be tested without the full store.
type ReservationStatusLookup interface {
	Status(ctx context.Context, reservationID string) (domain.ReservationStatus, time.Time, error)
}
