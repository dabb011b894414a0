// internal/checkout/infrastructure/adapter/payment_gateway.go
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"bazaar/internal/checkout/domain/port"
	"bazaar/internal/pkg/logger"
)

// tokenExpiryMargin refreshes the provider token slightly before the
// provider would reject it, so in-flight calls never ride an expiring token.
const tokenExpiryMargin = 30 * time.Second

// PaymentGatewayAdapter implements port.PaymentGateway against the payment
// provider's REST surface. The provider is opaque here: create, capture,
// verify, plus an OAuth token endpoint.
type PaymentGatewayAdapter struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	// token cache: one value, one expiry, and a singleflight group so
	// concurrent expired-token callers trigger exactly one refresh.
	tokenMu      sync.RWMutex
	token        string
	tokenExpires time.Time
	refreshGroup singleflight.Group
}

// NewPaymentGatewayAdapter builds the adapter from provider credentials.
func NewPaymentGatewayAdapter(baseURL, clientID, clientSecret string) *PaymentGatewayAdapter {
	return &PaymentGatewayAdapter{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
			},
		},
	}
}

// accessToken returns a valid bearer token, refreshing through singleflight
// when the cached one is missing or about to expire.
func (g *PaymentGatewayAdapter) accessToken(ctx context.Context) (string, error) {
	g.tokenMu.RLock()
	token, expires := g.token, g.tokenExpires
	g.tokenMu.RUnlock()
	if token != "" && time.Now().Before(expires.Add(-tokenExpiryMargin)) {
		return token, nil
	}

	v, err, _ := g.refreshGroup.Do("token", func() (interface{}, error) {
		// Another waiter may have refreshed while we queued.
		g.tokenMu.RLock()
		token, expires := g.token, g.tokenExpires
		g.tokenMu.RUnlock()
		if token != "" && time.Now().Before(expires.Add(-tokenExpiryMargin)) {
			return token, nil
		}
		return g.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *PaymentGatewayAdapter) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "payment token request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment token endpoint returned %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "decode payment token")
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("payment token endpoint returned empty token")
	}

	g.tokenMu.Lock()
	g.token = payload.AccessToken
	g.tokenExpires = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	g.tokenMu.Unlock()
	logger.Ctx(ctx).Debug().Int64("expires_in", payload.ExpiresIn).Msg("refreshed payment provider token")
	return payload.AccessToken, nil
}

// Create opens a provider order for the amount, keyed by reservationID so
// retried creates land on the same provider order.
func (g *PaymentGatewayAdapter) Create(ctx context.Context, reservationID string, amount float64, currency string) (port.PaymentOrder, error) {
	body := map[string]interface{}{
		"reference_id": reservationID,
		"amount":       map[string]interface{}{"value": fmt.Sprintf("%.2f", amount), "currency_code": currency},
		"intent":       "CAPTURE",
	}
	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := g.call(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return port.PaymentOrder{}, err
	}
	payment := port.PaymentOrder{ProviderOrderID: out.ID}
	for _, link := range out.Links {
		if link.Rel == "approve" {
			payment.ApproveURL = link.Href
		}
	}
	return payment, nil
}

// Capture settles the provider order. Anything other than a COMPLETED status
// is a failure, including the "not captured" soft decline.
func (g *PaymentGatewayAdapter) Capture(ctx context.Context, providerOrderID string) (string, error) {
	var out struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", providerOrderID)
	if err := g.call(ctx, http.MethodPost, path, map[string]interface{}{}, &out); err != nil {
		return "", err
	}
	if out.Status != "COMPLETED" {
		return "", fmt.Errorf("payment not captured: provider status %q", out.Status)
	}
	for _, unit := range out.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				return capture.ID, nil
			}
		}
	}
	return "", fmt.Errorf("payment captured but provider returned no capture id")
}

// Verify reads back the provider order status.
func (g *PaymentGatewayAdapter) Verify(ctx context.Context, providerOrderID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := g.call(ctx, http.MethodGet, "/v2/checkout/orders/"+providerOrderID, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (g *PaymentGatewayAdapter) call(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "payment provider %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payment provider %s %s returned %s: %s", method, path, resp.Status, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode payment provider response")
		}
	}
	return nil
}
