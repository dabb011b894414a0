// internal/checkout/infrastructure/adapter/inventory_http_adapter.go
package adapter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bazaar/internal/checkout/domain/port"
	"bazaar/internal/pkg/httpclient"
	"bazaar/internal/pkg/logger"
)

const inventoryServiceName = "inventory-service"

// InventoryHTTPAdapter implements port.InventoryService over the signed
// internal HTTP surface of the inventory service.
type InventoryHTTPAdapter struct {
	client *httpclient.Client
}

func NewInventoryHTTPAdapter(client *httpclient.Client) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client}
}

type reserveBody struct {
	ReservationID string        `json:"reservationId"`
	CartID        string        `json:"cartId,omitempty"`
	UserID        string        `json:"userId,omitempty"`
	Items         []interface{} `json:"items"`
	TTL           int           `json:"ttl,omitempty"`
}

// Reserve places a hold for every cart item in a single call; the inventory
// service rolls back internally on partial failure.
func (a *InventoryHTTPAdapter) Reserve(ctx context.Context, req port.ReserveRequest) (time.Time, error) {
	items := make([]interface{}, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item)
	}
	var out struct {
		ReservationID string    `json:"reservationId"`
		ExpiresAt     time.Time `json:"expiresAt"`
	}
	err := a.client.CallService(ctx, inventoryServiceName, "/inventory/reserve", reserveBody{
		ReservationID: req.ReservationID,
		CartID:        req.CartID,
		UserID:        req.UserID,
		Items:         items,
		TTL:           req.TTLSeconds,
	}, &out)
	if err != nil {
		return time.Time{}, err
	}
	return out.ExpiresAt, nil
}

// Commit finalizes the hold into a permanent deduction.
func (a *InventoryHTTPAdapter) Commit(ctx context.Context, reservationID string) error {
	return a.client.CallService(ctx, inventoryServiceName, "/inventory/commit",
		map[string]string{"reservationId": reservationID}, nil)
}

// Release frees the hold. A 404 means there is nothing to release, which is
// success for a compensating call.
func (a *InventoryHTTPAdapter) Release(ctx context.Context, reservationID string) error {
	err := a.client.CallService(ctx, inventoryServiceName, "/inventory/release",
		map[string]string{"reservationId": reservationID}, nil)
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		logger.Ctx(ctx).Warn().
			Str("reservation_id", reservationID).
			Msg("release found no reservation, treating as already released")
		return nil
	}
	return err
}
