// internal/inventory/application/engine.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/inventory/domain"
	"bazaar/internal/inventory/domain/port"
	"bazaar/internal/pkg/logger"
)

// Engine composes the stock ledger, the advisory lock manager and the
// reservation store into the reserve/commit/release operations. Within one
// reserve call items are processed strictly in caller order, each step
// awaiting its I/O, which keeps the rollback bookkeeping deterministic.
type Engine struct {
	ledger port.StockLedger
	locks  port.LockManager
	store  port.ReservationStore
	tracer trace.Tracer

	lockTTL time.Duration
}

// NewEngine wires the engine. lockTTL bounds how long a product lease may
// outlive a crashed holder.
func NewEngine(ledger port.StockLedger, locks port.LockManager, store port.ReservationStore, tracer trace.Tracer, lockTTL time.Duration) *Engine {
	return &Engine{
		ledger:  ledger,
		locks:   locks,
		store:   store,
		tracer:  tracer,
		lockTTL: lockTTL,
	}
}

// ReserveResult is the success payload of a reserve call.
type ReserveResult struct {
	ReservationID string    `json:"reservationId"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// appliedState tracks what a reserve attempt has already done, so a failure
// at item k can undo items 1..k-1 before the error propagates. It travels as
// an explicit value, never attached to an error.
type appliedState struct {
	items []domain.ReservationItem
	locks []string
}

// Reserve holds the requested quantities for one checkout attempt. On any
// per-item failure every previously applied item is rolled back inside this
// call; callers never observe a half-reserved cart. Retries with the same
// reservation id are idempotent: an existing active hold is returned as-is
// without touching the ledger again.
func (e *Engine) Reserve(ctx context.Context, reservationID, userID, cartID string, items []domain.ReservationItem, ttl time.Duration) (*ReserveResult, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.Int("reservation.items", len(items)),
	)

	if existing, err := e.store.Get(ctx, reservationID); err == nil {
		if existing.Status == domain.StatusActive {
			logger.Ctx(ctx).Info().
				Str("reservation_id", reservationID).
				Msg("reserve retry matched an active reservation")
			reserveTotal.WithLabelValues("duplicate").Inc()
			return &ReserveResult{ReservationID: existing.ID, ExpiresAt: existing.ExpiresAt}, nil
		}
		reserveTotal.WithLabelValues("not_active").Inc()
		return nil, &domain.NotActiveError{Status: existing.Status}
	} else if !errors.Is(err, domain.ErrReservationNotFound) {
		reserveTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "reservation lookup")
	}

	owner := domain.LockOwnerForReservation(reservationID)
	var applied appliedState

	for _, item := range items {
		if err := e.reserveItem(ctx, owner, item, &applied); err != nil {
			e.rollback(ctx, owner, applied)
			span.RecordError(err)
			span.SetStatus(codes.Error, "reserve failed")
			reserveTotal.WithLabelValues(outcomeLabel(err)).Inc()
			return nil, err
		}
	}

	reservation := domain.NewReservation(reservationID, userID, cartID, items, ttl)
	if err := e.store.Create(ctx, reservation); err != nil {
		e.rollback(ctx, owner, applied)
		// Two retries can pass the lookup above before either inserts; the
		// duplicate key collapses the loser onto the surviving hold.
		if existing, gerr := e.store.Get(ctx, reservationID); gerr == nil && existing.Status == domain.StatusActive {
			logger.Ctx(ctx).Info().
				Str("reservation_id", reservationID).
				Msg("reserve retry lost an insert race, returning surviving hold")
			reserveTotal.WithLabelValues("duplicate").Inc()
			return &ReserveResult{ReservationID: existing.ID, ExpiresAt: existing.ExpiresAt}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation persist failed")
		reserveTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "persist reservation")
	}

	logger.Ctx(ctx).Info().
		Str("reservation_id", reservationID).
		Int("items", len(items)).
		Time("expires_at", reservation.ExpiresAt).
		Msg("reservation active")
	reserveTotal.WithLabelValues("ok").Inc()
	return &ReserveResult{ReservationID: reservationID, ExpiresAt: reservation.ExpiresAt}, nil
}

// reserveItem runs the per-item sequence: validate, availability pre-check,
// lock, conditional ledger update. The pre-check is a fast rejection with an
// accurate available count; the ledger's conditional update is the real gate.
func (e *Engine) reserveItem(ctx context.Context, owner string, item domain.ReservationItem, applied *appliedState) error {
	if item.ProductID == "" || item.Qty <= 0 {
		return &domain.ReservationError{
			Kind:      domain.FailInvalidItem,
			ProductID: item.ProductID,
			Requested: item.Qty,
			Message:   "productId required and qty must be positive",
		}
	}

	stock, err := e.ledger.Get(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrStockNotFound) {
			return &domain.ReservationError{Kind: domain.FailProductNotFound, ProductID: item.ProductID}
		}
		return errors.Wrap(err, "load stock")
	}
	if stock.Available() < item.Qty {
		return &domain.ReservationError{
			Kind:      domain.FailInsufficientStock,
			ProductID: item.ProductID,
			Available: stock.Available(),
			Requested: item.Qty,
		}
	}

	if err := e.locks.Acquire(ctx, item.ProductID, owner, e.lockTTL); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return &domain.ReservationError{
				Kind:      domain.FailLocked,
				ProductID: item.ProductID,
				Message:   "product is locked by another reservation, retry shortly",
			}
		}
		return errors.Wrap(err, "acquire product lock")
	}
	applied.locks = append(applied.locks, item.ProductID)

	ok, err := e.ledger.Reserve(ctx, item.ProductID, item.Qty)
	if err != nil {
		return errors.Wrap(err, "ledger reserve")
	}
	if !ok {
		// Lost the race between the pre-check and the conditional update.
		re := &domain.ReservationError{
			Kind:      domain.FailInsufficientStock,
			ProductID: item.ProductID,
			Requested: item.Qty,
		}
		if fresh, lerr := e.ledger.Get(ctx, item.ProductID); lerr == nil {
			re.Available = fresh.Available()
		}
		return re
	}
	applied.items = append(applied.items, item)
	return nil
}

// rollback undoes every applied ledger increment and releases every held
// lock. Best-effort: failures are logged and do not mask the original error.
func (e *Engine) rollback(ctx context.Context, owner string, applied appliedState) {
	for i := len(applied.items) - 1; i >= 0; i-- {
		item := applied.items[i]
		if err := e.ledger.Release(ctx, item.ProductID, item.Qty); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("product_id", item.ProductID).
				Int64("qty", item.Qty).
				Msg("failed to roll back ledger reserve")
		}
	}
	for i := len(applied.locks) - 1; i >= 0; i-- {
		productID := applied.locks[i]
		if err := e.locks.Release(ctx, productID, owner); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("product_id", productID).
				Msg("failed to roll back product lock")
		}
	}
}

// Commit turns an active reservation into a permanent stock deduction.
// A second commit finds the terminal status and fails with NotActiveError,
// so stock is never deducted twice.
func (e *Engine) Commit(ctx context.Context, reservationID string) error {
	ctx, span := e.tracer.Start(ctx, "inventory.Commit")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	reservation, err := e.store.Get(ctx, reservationID)
	if err != nil {
		commitTotal.WithLabelValues("not_found").Inc()
		return err
	}
	if reservation.Status != domain.StatusActive {
		commitTotal.WithLabelValues("not_active").Inc()
		return &domain.NotActiveError{Status: reservation.Status}
	}

	// Claim the terminal status before touching the ledger. The conditional
	// update is the linearization point: a racing release that loses it never
	// runs its ledger path, so the deduction happens exactly once.
	if err := e.store.UpdateStatus(ctx, reservationID, domain.StatusCommitted); err != nil {
		var notActive *domain.NotActiveError
		if errors.As(err, &notActive) {
			commitTotal.WithLabelValues("not_active").Inc()
			return err
		}
		commitTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "mark reservation committed")
	}

	owner := reservation.LockOwner()
	for _, item := range reservation.Items {
		if err := e.ledger.Commit(ctx, item.ProductID, item.Qty); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("reservation_id", reservationID).
				Str("product_id", item.ProductID).
				Msg("ledger commit failed after status claim, stock needs manual reconciliation")
			commitTotal.WithLabelValues("error").Inc()
			return errors.Wrap(err, "ledger commit")
		}
		if err := e.locks.Release(ctx, item.ProductID, owner); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("product_id", item.ProductID).
				Msg("failed to release product lock after commit")
		}
	}

	logger.Ctx(ctx).Info().Str("reservation_id", reservationID).Msg("reservation committed")
	commitTotal.WithLabelValues("ok").Inc()
	return nil
}

// Release returns held stock to availability. Idempotent: releasing an
// already-released reservation succeeds without touching the ledger again.
// A committed reservation is left untouched (the deduction is permanent);
// the call still reports success so compensation retries stay safe.
func (e *Engine) Release(ctx context.Context, reservationID string) error {
	ctx, span := e.tracer.Start(ctx, "inventory.Release")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	reservation, err := e.store.Get(ctx, reservationID)
	if err != nil {
		releaseTotal.WithLabelValues("not_found").Inc()
		return err
	}
	switch reservation.Status {
	case domain.StatusReleased:
		releaseTotal.WithLabelValues("noop").Inc()
		return nil
	case domain.StatusCommitted:
		logger.Ctx(ctx).Warn().
			Str("reservation_id", reservationID).
			Msg("release requested for committed reservation, ignoring")
		releaseTotal.WithLabelValues("noop").Inc()
		return nil
	}

	// Same claim-first ordering as Commit. The status read above may be
	// stale; only the winner of the conditional update returns stock, so a
	// sweep racing an explicit commit can never decrement reserved twice.
	if err := e.store.UpdateStatus(ctx, reservationID, domain.StatusReleased); err != nil {
		var notActive *domain.NotActiveError
		if errors.As(err, &notActive) {
			if notActive.Status == domain.StatusCommitted {
				logger.Ctx(ctx).Warn().
					Str("reservation_id", reservationID).
					Msg("release lost the race to a commit, leaving deduction in place")
			}
			releaseTotal.WithLabelValues("noop").Inc()
			return nil
		}
		releaseTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "mark reservation released")
	}

	owner := reservation.LockOwner()
	for _, item := range reservation.Items {
		if err := e.ledger.Release(ctx, item.ProductID, item.Qty); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("reservation_id", reservationID).
				Str("product_id", item.ProductID).
				Msg("ledger release failed after status claim, stock needs manual reconciliation")
			releaseTotal.WithLabelValues("error").Inc()
			return errors.Wrap(err, "ledger release")
		}
		if err := e.locks.Release(ctx, item.ProductID, owner); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("product_id", item.ProductID).
				Msg("failed to release product lock")
		}
	}

	logger.Ctx(ctx).Info().Str("reservation_id", reservationID).Msg("reservation released")
	releaseTotal.WithLabelValues("ok").Inc()
	return nil
}

// Stock exposes the current ledger row for the product-stock endpoint.
func (e *Engine) Stock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	return e.ledger.Get(ctx, productID)
}

func outcomeLabel(err error) string {
	if re, ok := domain.AsReservationError(err); ok {
		switch re.Kind {
		case domain.FailInsufficientStock:
			return "insufficient_stock"
		case domain.FailLocked:
			return "locked"
		case domain.FailProductNotFound:
			return "product_not_found"
		default:
			return "invalid_item"
		}
	}
	return "error"
}
