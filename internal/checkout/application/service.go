// internal/checkout/application/service.go
package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/checkout/application/saga"
	"bazaar/internal/checkout/domain"
	"bazaar/internal/pkg/logger"
)

// ErrInvalidCheckout reports a request that fails validation before the saga
// starts; no downstream call has been made.
var ErrInvalidCheckout = errors.New("invalid checkout request")

// CheckoutApplicationService is the use-case entry point: validate, build the
// aggregate, run the saga.
type CheckoutApplicationService struct {
	coordinator *saga.Coordinator
	tracer      trace.Tracer
}

func NewCheckoutApplicationService(coordinator *saga.Coordinator, tracer trace.Tracer) *CheckoutApplicationService {
	return &CheckoutApplicationService{coordinator: coordinator, tracer: tracer}
}

// Checkout runs one checkout attempt end to end. The returned error is the
// first failing saga step's error, untouched, so the HTTP layer can surface
// it verbatim.
func (s *CheckoutApplicationService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.Checkout")
	defer span.End()

	if req.ReservationID == "" || len(req.Items) == 0 {
		return nil, ErrInvalidCheckout
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Qty <= 0 {
			return nil, ErrInvalidCheckout
		}
	}

	orderID := uuid.New().String()
	order, err := domain.NewCheckoutOrder(orderID, req.ReservationID, req.CartID, req.UserID, req.Items, req.Amount, req.Currency)
	if err != nil {
		return nil, ErrInvalidCheckout
	}
	order.Address = req.Address
	order.Shipping = req.Shipping

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("reservation.id", req.ReservationID),
		attribute.Int("order.items", len(req.Items)),
	)
	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("reservation_id", req.ReservationID).
		Msg("starting checkout saga")

	if err := s.coordinator.Run(ctx, order); err != nil {
		span.SetStatus(codes.Error, "checkout failed")
		return nil, err
	}

	return &CheckoutResponse{
		OrderID:       order.OrderID,
		ReservationID: order.ReservationID,
		CaptureID:     order.CaptureID,
		State:         order.State,
	}, nil
}
