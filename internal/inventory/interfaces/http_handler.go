// internal/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"bazaar/internal/inventory/application"
	"bazaar/internal/inventory/domain"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/signature"
)

const serviceName = "inventory-service"

const (
	minTTLSeconds     = 60
	maxTTLSeconds     = 3600
	defaultTTLSeconds = 900
)

// InventoryHandler exposes the internal inventory HTTP surface.
type InventoryHandler struct {
	engine *application.Engine
}

// NewInventoryHandler creates the handler around the reservation engine.
func NewInventoryHandler(engine *application.Engine) *InventoryHandler {
	return &InventoryHandler{engine: engine}
}

// RegisterRoutes mounts all routes. Every /inventory/* route sits behind the
// HMAC signature middleware; health and metrics stay open.
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux, secret string, devBypass bool) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	signed := func(fn http.HandlerFunc) http.Handler {
		return signature.Middleware(secret, devBypass, fn)
	}
	mux.Handle("/inventory/reserve", signed(h.reserveHandler))
	mux.Handle("/inventory/commit", signed(h.commitHandler))
	mux.Handle("/inventory/release", signed(h.releaseHandler))
	mux.Handle("/inventory/product-stock", signed(h.productStockHandler))
}

type reserveRequest struct {
	ReservationID string                   `json:"reservationId"`
	CartID        string                   `json:"cartId,omitempty"`
	UserID        string                   `json:"userId,omitempty"`
	Items         []domain.ReservationItem `json:"items"`
	TTL           int                      `json:"ttl,omitempty"` // seconds
}

type reservationIDRequest struct {
	ReservationID string `json:"reservationId"`
}

func (h *InventoryHandler) reserveHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "inventory-service.Reserve")
	defer span.End()

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	if req.ReservationID == "" {
		writeValidationError(w, "reservationId is required")
		return
	}
	if len(req.Items) == 0 {
		writeValidationError(w, "items must not be empty")
		return
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = defaultTTLSeconds
	}
	if ttl < minTTLSeconds || ttl > maxTTLSeconds {
		writeValidationError(w, "ttl must be between 60 and 3600 seconds")
		return
	}

	result, err := h.engine.Reserve(ctx, req.ReservationID, req.UserID, req.CartID, req.Items, time.Duration(ttl)*time.Second)
	if err != nil {
		writeReserveError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) commitHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "inventory-service.Commit")
	defer span.End()

	var req reservationIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReservationID == "" {
		writeValidationError(w, "reservationId is required")
		return
	}

	if err := h.engine.Commit(ctx, req.ReservationID); err != nil {
		var notActive *domain.NotActiveError
		switch {
		case errors.Is(err, domain.ErrReservationNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		case errors.As(err, &notActive):
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":  "not_active",
				"status": notActive.Status,
			})
		default:
			writeInternalError(ctx, w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"committed": true, "reservationId": req.ReservationID})
}

func (h *InventoryHandler) releaseHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "inventory-service.Release")
	defer span.End()

	var req reservationIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReservationID == "" {
		writeValidationError(w, "reservationId is required")
		return
	}

	if err := h.engine.Release(ctx, req.ReservationID); err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
			return
		}
		writeInternalError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"released": true, "reservationId": req.ReservationID})
}

func (h *InventoryHandler) productStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "inventory-service.ProductStock")
	defer span.End()

	var req struct {
		ProductID string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeValidationError(w, "productId is required")
		return
	}

	record, err := h.engine.Stock(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrStockNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error":     "product_not_found",
				"productId": req.ProductID,
			})
			return
		}
		writeInternalError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"productId": record.ProductID,
		"stock":     record.Stock,
		"reserved":  record.Reserved,
	})
}

// writeReserveError maps the engine's tagged failure taxonomy onto the wire.
func writeReserveError(ctx context.Context, w http.ResponseWriter, err error) {
	if re, ok := domain.AsReservationError(err); ok {
		switch re.Kind {
		case domain.FailInvalidItem:
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "validation_error",
				"details": re.Error(),
			})
		case domain.FailProductNotFound:
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error":     "product_not_found",
				"productId": re.ProductID,
			})
		case domain.FailInsufficientStock:
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     "INSUFFICIENT_STOCK",
				"productId": re.ProductID,
				"available": re.Available,
				"requested": re.Requested,
			})
		case domain.FailLocked:
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":   "product_locked",
				"message": re.Message,
			})
		}
		return
	}
	var notActive *domain.NotActiveError
	if errors.As(err, &notActive) {
		// A reserve retry for a reservation that already ended.
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "not_active",
			"status": notActive.Status,
		})
		return
	}
	writeInternalError(ctx, w, err)
}

func writeValidationError(w http.ResponseWriter, details string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "validation_error",
		"details": details,
	})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.Ctx(ctx).Error().Err(err).Msg("inventory request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
