// internal/checkout/infrastructure/adapter/order_http_adapter.go
package adapter

import (
	"context"

	"bazaar/internal/checkout/domain/port"
	"bazaar/internal/pkg/httpclient"
)

const orderServiceName = "order-service"

// OrderHTTPAdapter implements port.OrderRecorder over the order service's
// signed internal surface. The receiving side is idempotent by
// reservationId: a duplicate create returns the existing order.
type OrderHTTPAdapter struct {
	client *httpclient.Client
}

func NewOrderHTTPAdapter(client *httpclient.Client) *OrderHTTPAdapter {
	return &OrderHTTPAdapter{client: client}
}

func (a *OrderHTTPAdapter) Create(ctx context.Context, rec port.OrderRecord) (string, error) {
	var out struct {
		OrderID string `json:"orderId"`
	}
	err := a.client.CallService(ctx, orderServiceName, "/orders/internal/create", map[string]interface{}{
		"orderId":       rec.OrderID,
		"reservationId": rec.ReservationID,
		"payment":       map[string]string{"captureId": rec.CaptureID},
		"items":         rec.Items,
		"amount":        rec.Amount,
		"currency":      rec.Currency,
		"address":       rec.Address,
		"shipping":      rec.Shipping,
		"userId":        rec.UserID,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.OrderID == "" {
		out.OrderID = rec.OrderID
	}
	return out.OrderID, nil
}
