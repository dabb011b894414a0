// internal/checkout/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"bazaar/internal/checkout/application"
	"bazaar/internal/pkg/httpclient"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/signature"
)

const serviceName = "checkout-service"

// CheckoutHandler exposes the checkout HTTP surface.
type CheckoutHandler struct {
	service *application.CheckoutApplicationService
}

func NewCheckoutHandler(service *application.CheckoutApplicationService) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

// RegisterRoutes mounts the routes. /checkout sits behind the HMAC signature
// middleware; health and metrics stay open.
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux, secret string, devBypass bool) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/checkout", signature.Middleware(secret, devBypass, http.HandlerFunc(h.checkoutHandler)))
}

func (h *CheckoutHandler) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "checkout-service.Checkout")
	defer span.End()

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "validation_error",
			"details": "invalid JSON body",
		})
		return
	}

	resp, err := h.service.Checkout(ctx, &req)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeCheckoutError surfaces the first failing saga step. Downstream error
// envelopes pass through with their original status so the caller sees e.g.
// the inventory service's INSUFFICIENT_STOCK payload unchanged.
func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, application.ErrInvalidCheckout) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "validation_error",
			"details": err.Error(),
		})
		return
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		if len(statusErr.Payload) > 0 && json.Valid(statusErr.Payload) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(statusErr.StatusCode)
			w.Write(statusErr.Payload)
			return
		}
		writeJSON(w, statusErr.StatusCode, map[string]interface{}{
			"error": "downstream_error",
		})
		return
	}

	logger.Ctx(ctx).Error().Err(err).Msg("checkout failed")
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error":   "checkout_failed",
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
