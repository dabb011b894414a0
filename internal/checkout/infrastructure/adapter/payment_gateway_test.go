// internal/checkout/infrastructure/adapter/payment_gateway_test.go
package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProviderServer(t *testing.T, tokenFetches *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(tokenFetches, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-123",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "prov-1",
			"links": []map[string]string{
				{"rel": "self", "href": "https://provider.example/self"},
				{"rel": "approve", "href": "https://provider.example/approve"},
			},
		})
	})
	mux.HandleFunc("/v2/checkout/orders/prov-1/capture", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "COMPLETED",
			"purchase_units": []map[string]interface{}{
				{"payments": map[string]interface{}{
					"captures": []map[string]string{{"id": "cap-1"}},
				}},
			},
		})
	})
	mux.HandleFunc("/v2/checkout/orders/prov-declined/capture", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "DECLINED"})
	})
	mux.HandleFunc("/v2/checkout/orders/prov-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "COMPLETED"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateAndCapture(t *testing.T) {
	var tokenFetches int32
	srv := newProviderServer(t, &tokenFetches)
	gateway := NewPaymentGatewayAdapter(srv.URL, "client-id", "client-secret")
	ctx := context.Background()

	payment, err := gateway.Create(ctx, "r-1", 59.98, "USD")
	require.NoError(t, err)
	assert.Equal(t, "prov-1", payment.ProviderOrderID)
	assert.Equal(t, "https://provider.example/approve", payment.ApproveURL)

	captureID, err := gateway.Capture(ctx, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, "cap-1", captureID)

	status, err := gateway.Verify(ctx, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", status)

	// Three calls, one token fetch.
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenFetches))
}

func TestCaptureRejectsNonCompletedStatus(t *testing.T) {
	var tokenFetches int32
	srv := newProviderServer(t, &tokenFetches)
	gateway := NewPaymentGatewayAdapter(srv.URL, "client-id", "client-secret")

	_, err := gateway.Capture(context.Background(), "prov-declined")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `provider status "DECLINED"`)
}

func TestConcurrentCallersShareOneTokenRefresh(t *testing.T) {
	var tokenFetches int32
	srv := newProviderServer(t, &tokenFetches)
	gateway := NewPaymentGatewayAdapter(srv.URL, "client-id", "client-secret")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gateway.Verify(context.Background(), "prov-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenFetches))
}

func TestTokenEndpointFailureSurfaces(t *testing.T) {
	var tokenFetches int32
	srv := newProviderServer(t, &tokenFetches)
	gateway := NewPaymentGatewayAdapter(srv.URL, "client-id", "wrong-secret")

	_, err := gateway.Verify(context.Background(), "prov-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token endpoint")
}
