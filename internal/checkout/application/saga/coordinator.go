// internal/checkout/application/saga/coordinator.go
package saga

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/checkout/domain"
	"bazaar/internal/checkout/domain/port"
	"bazaar/internal/pkg/logger"
)

// step is one forward transition of the checkout saga. run advances the
// order and returns the error that, if non-nil, halts the saga with the
// order still in its previous state.
type step struct {
	name string
	to   domain.SagaState
	run  func(ctx context.Context, order *domain.CheckoutOrder) error
}

// compensator undoes (or records) the consequences of having reached one
// particular state when a later step fails. Compensation is best-effort and
// at-most-once: failures are logged, never retried indefinitely, and never
// replace the error already being returned to the caller.
type compensator func(ctx context.Context, order *domain.CheckoutOrder, cause error)

// Coordinator drives the checkout saga:
// reserve → create payment → capture → commit inventory → create order.
// Extending the saga means appending to the step list and, when the new
// state needs undoing, adding one row to the compensation table.
type Coordinator struct {
	inventory   port.InventoryService
	payments    port.PaymentGateway
	orders      port.OrderRecorder
	notifier    port.NotificationProducer
	deadLetters port.DeadLetterStore
	tracer      trace.Tracer

	// stepTimeout bounds every downstream call; a timeout is handled
	// exactly like an explicit failure.
	stepTimeout time.Duration

	// reserveTTL is how long the inventory hold should outlive the saga if
	// the saga dies before commit or release. Zero defers to the inventory
	// service's own default.
	reserveTTL time.Duration

	steps         []step
	compensations map[domain.SagaState]compensator
}

// NewCoordinator wires the saga against its outbound ports.
func NewCoordinator(
	inventory port.InventoryService,
	payments port.PaymentGateway,
	orders port.OrderRecorder,
	notifier port.NotificationProducer,
	deadLetters port.DeadLetterStore,
	tracer trace.Tracer,
	stepTimeout time.Duration,
	reserveTTL time.Duration,
) *Coordinator {
	c := &Coordinator{
		inventory:   inventory,
		payments:    payments,
		orders:      orders,
		notifier:    notifier,
		deadLetters: deadLetters,
		tracer:      tracer,
		stepTimeout: stepTimeout,
		reserveTTL:  reserveTTL,
	}

	c.steps = []step{
		{name: "ReserveInventory", to: domain.StateReserved, run: c.reserveInventory},
		{name: "CreatePayment", to: domain.StatePaymentCreated, run: c.createPayment},
		{name: "CapturePayment", to: domain.StateCaptured, run: c.capturePayment},
		{name: "CommitInventory", to: domain.StateInventoryCommitted, run: c.commitInventory},
		{name: "CreateOrder", to: domain.StateOrderCreated, run: c.createOrder},
	}

	// What to do when a step fails, keyed by the state the saga had
	// reached. Once money is captured the reservation is no longer
	// released automatically: those states dead-letter for manual
	// reconciliation instead.
	c.compensations = map[domain.SagaState]compensator{
		domain.StateReserved:           c.releaseReservation,
		domain.StatePaymentCreated:     c.releaseReservation,
		domain.StateCaptured:           c.deadLetter(domain.DeadLetterCaptureNoCommit),
		domain.StateInventoryCommitted: c.deadLetter(domain.DeadLetterNoOrder),
	}
	return c
}

// Run executes the saga to completion or through its compensation path.
// The first failing step's error is returned verbatim.
func (c *Coordinator) Run(ctx context.Context, order *domain.CheckoutOrder) error {
	ctx, span := c.tracer.Start(ctx, "saga.Checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("reservation.id", order.ReservationID),
	)

	for _, s := range c.steps {
		if err := c.runStep(ctx, s, order); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "saga failed at "+s.name)
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", order.OrderID).
				Str("step", s.name).
				Str("reached_state", string(order.State)).
				Msg("checkout saga step failed, compensating")
			sagaFailedTotal.WithLabelValues(s.name).Inc()

			c.compensate(ctx, order, err)
			return err
		}
		order.Advance(s.to)
		span.AddEvent("saga state " + string(s.to))
	}

	if err := c.notifier.CheckoutCompleted(ctx, order); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.OrderID).Msg("failed to publish checkout completed event")
	}
	sagaCompletedTotal.Inc()
	logger.Ctx(ctx).Info().
		Str("order_id", order.OrderID).
		Str("reservation_id", order.ReservationID).
		Msg("checkout saga completed")
	return nil
}

func (c *Coordinator) runStep(ctx context.Context, s step, order *domain.CheckoutOrder) error {
	ctx, span := c.tracer.Start(ctx, "saga."+s.name)
	defer span.End()

	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()
	if err := s.run(stepCtx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, s.name+" failed")
		return err
	}
	return nil
}

// compensate looks up the action for the state the saga reached. It runs on
// a fresh context carrying only the trace linkage, because the request
// context may already be timed out or cancelled.
func (c *Coordinator) compensate(ctx context.Context, order *domain.CheckoutOrder, cause error) {
	comp, ok := c.compensations[order.State]
	if !ok {
		// Failure before the first state transition; nothing to undo.
		order.Advance(domain.StateCompensated)
		return
	}

	compCtx := trace.ContextWithRemoteSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	compCtx, cancel := context.WithTimeout(compCtx, c.stepTimeout)
	defer cancel()
	comp(compCtx, order, cause)

	if err := c.notifier.CheckoutFailed(compCtx, order, cause.Error()); err != nil {
		logger.Ctx(compCtx).Warn().Err(err).Str("order_id", order.OrderID).Msg("failed to publish checkout failed event")
	}
}

func (c *Coordinator) reserveInventory(ctx context.Context, order *domain.CheckoutOrder) error {
	expiresAt, err := c.inventory.Reserve(ctx, port.ReserveRequest{
		ReservationID: order.ReservationID,
		CartID:        order.CartID,
		UserID:        order.UserID,
		Items:         order.Items,
		TTLSeconds:    int(c.reserveTTL / time.Second),
	})
	if err != nil {
		return err
	}
	order.ExpiresAt = expiresAt
	return nil
}

func (c *Coordinator) createPayment(ctx context.Context, order *domain.CheckoutOrder) error {
	payment, err := c.payments.Create(ctx, order.ReservationID, order.Amount, order.Currency)
	if err != nil {
		return err
	}
	order.ProviderOrderID = payment.ProviderOrderID
	return nil
}

func (c *Coordinator) capturePayment(ctx context.Context, order *domain.CheckoutOrder) error {
	captureID, err := c.payments.Capture(ctx, order.ProviderOrderID)
	if err != nil {
		return err
	}
	order.CaptureID = captureID
	return nil
}

func (c *Coordinator) commitInventory(ctx context.Context, order *domain.CheckoutOrder) error {
	return c.inventory.Commit(ctx, order.ReservationID)
}

func (c *Coordinator) createOrder(ctx context.Context, order *domain.CheckoutOrder) error {
	orderID, err := c.orders.Create(ctx, port.OrderRecord{
		OrderID:       order.OrderID,
		ReservationID: order.ReservationID,
		CaptureID:     order.CaptureID,
		Items:         order.Items,
		Amount:        order.Amount,
		Currency:      order.Currency,
		Address:       order.Address,
		Shipping:      order.Shipping,
		UserID:        order.UserID,
	})
	if err != nil {
		return err
	}
	order.OrderID = orderID
	return nil
}

// releaseReservation is the compensating action for failures before capture.
func (c *Coordinator) releaseReservation(ctx context.Context, order *domain.CheckoutOrder, cause error) {
	if err := c.inventory.Release(ctx, order.ReservationID); err != nil {
		// At-most-once: log and move on, the expiry sweep is the backstop.
		logger.Ctx(ctx).Error().Err(err).
			Str("reservation_id", order.ReservationID).
			Msg("compensating release failed")
	}
	order.Advance(domain.StateCompensated)
	sagaCompensatedTotal.Inc()
}

// deadLetter records an irrecoverable cross-step failure for manual
// reconciliation. The caller still gets an explicit error, never a silent
// success.
func (c *Coordinator) deadLetter(reason string) compensator {
	return func(ctx context.Context, order *domain.CheckoutOrder, cause error) {
		record := &domain.DeadLetter{
			OrderRef:      order.OrderID,
			ReservationID: order.ReservationID,
			Reason:        reason,
			Detail:        cause.Error(),
		}
		if err := c.deadLetters.Save(ctx, record); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("order_ref", order.OrderID).
				Str("reason", reason).
				Msg("CRITICAL: failed to persist dead letter record")
		} else {
			logger.Ctx(ctx).Error().
				Str("dead_letter", record.Key()).
				Str("reservation_id", order.ReservationID).
				Msg("saga dead-lettered for manual reconciliation")
		}
		order.Advance(domain.StateManualReview)
		sagaDeadLetteredTotal.WithLabelValues(reason).Inc()
	}
}
