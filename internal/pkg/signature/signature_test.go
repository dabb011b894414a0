// internal/pkg/signature/signature_test.go
package signature

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignRequestVerifies(t *testing.T) {
	signer := NewSigner("top-secret")
	body := []byte(`{"reservationId":"res-1"}`)

	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", strings.NewReader(string(body)))
	signer.SignRequest(req, body)

	ts := req.Header.Get(HeaderTimestamp)
	presented := req.Header.Get(HeaderSignature)
	require.NotEmpty(t, ts)
	require.NotEmpty(t, presented)

	assert.True(t, Verify([]byte("top-secret"), ts, http.MethodPost, "/inventory/reserve", body, presented))
	assert.False(t, Verify([]byte("wrong-secret"), ts, http.MethodPost, "/inventory/reserve", body, presented))
	assert.False(t, Verify([]byte("top-secret"), ts, http.MethodPost, "/inventory/commit", body, presented))
	assert.False(t, Verify([]byte("top-secret"), ts, http.MethodPost, "/inventory/reserve", []byte(`{}`), presented))
}

func TestMiddlewareAcceptsSignedRequest(t *testing.T) {
	var called bool
	handler := Middleware("top-secret", false, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"a":1}`)
	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", strings.NewReader(string(body)))
	NewSigner("top-secret").SignRequest(req, body)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsUnsignedRequest(t *testing.T) {
	handler := Middleware("top-secret", false, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestMiddlewareRejectsTamperedBody(t *testing.T) {
	handler := Middleware("top-secret", false, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	signed := []byte(`{"qty":1}`)
	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", strings.NewReader(`{"qty":100}`))
	NewSigner("top-secret").SignRequest(req, signed)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsStaleTimestamp(t *testing.T) {
	handler := Middleware("top-secret", false, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", strings.NewReader(string(body)))
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Compute([]byte("top-secret"), ts, http.MethodPost, "/inventory/reserve", body))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareBypassHeader(t *testing.T) {
	run := func(devBypass bool) int {
		handler := Middleware("top-secret", devBypass, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", strings.NewReader(`{}`))
		req.Header.Set(HeaderDevBypass, "1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run(true))
	assert.Equal(t, http.StatusUnauthorized, run(false))
}
