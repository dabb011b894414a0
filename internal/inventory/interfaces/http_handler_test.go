// internal/inventory/interfaces/http_handler_test.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"bazaar/internal/inventory/application"
	"bazaar/internal/inventory/domain"
)

// Minimal in-memory ports so the handler drives a real engine.

type stubLedger struct{ rows map[string]*domain.StockRecord }

func (l *stubLedger) Reserve(ctx context.Context, productID string, qty int64) (bool, error) {
	row, ok := l.rows[productID]
	if !ok || row.Stock-row.Reserved < qty {
		return false, nil
	}
	row.Reserved += qty
	return true, nil
}

func (l *stubLedger) Release(ctx context.Context, productID string, qty int64) error {
	if row, ok := l.rows[productID]; ok {
		row.Reserved -= qty
		if row.Reserved < 0 {
			row.Reserved = 0
		}
	}
	return nil
}

func (l *stubLedger) Commit(ctx context.Context, productID string, qty int64) error {
	if row, ok := l.rows[productID]; ok {
		row.Stock -= qty
		row.Reserved -= qty
	}
	return nil
}

func (l *stubLedger) Get(ctx context.Context, productID string) (*domain.StockRecord, error) {
	row, ok := l.rows[productID]
	if !ok {
		return nil, domain.ErrStockNotFound
	}
	copied := *row
	return &copied, nil
}

type stubLocks struct{}

func (stubLocks) Acquire(ctx context.Context, productID, owner string, ttl time.Duration) error {
	return nil
}
func (stubLocks) Release(ctx context.Context, productID, owner string) error { return nil }

type stubStore struct{ reservations map[string]*domain.Reservation }

func (s *stubStore) Create(ctx context.Context, r *domain.Reservation) error {
	s.reservations[r.ID] = r
	return nil
}

func (s *stubStore) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return r, nil
}

func (s *stubStore) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	r, ok := s.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if r.Status != domain.StatusActive {
		return &domain.NotActiveError{Status: r.Status}
	}
	r.Status = status
	return nil
}

func (s *stubStore) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return nil, nil
}

func newTestMux(t *testing.T, stock map[string]int64) *http.ServeMux {
	t.Helper()
	ledger := &stubLedger{rows: map[string]*domain.StockRecord{}}
	for id, s := range stock {
		ledger.rows[id] = &domain.StockRecord{ProductID: id, Stock: s}
	}
	engine := application.NewEngine(ledger, stubLocks{}, &stubStore{reservations: map[string]*domain.Reservation{}}, otel.Tracer("test"), 10*time.Second)

	mux := http.NewServeMux()
	// Bypass enabled so tests focus on the handler, not the signature layer.
	NewInventoryHandler(engine).RegisterRoutes(mux, "secret", true)
	return mux
}

func post(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("x-internal-bypass", "1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestReserveEndpoint(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	rec := post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}],"ttl":900}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "r-1", body["reservationId"])
	assert.NotEmpty(t, body["expiresAt"])
}

func TestReserveEndpointRetrySameReservation(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	rec := post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)

	// A retried reserve hands back the existing hold instead of an error.
	rec = post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)
	assert.Equal(t, first["reservationId"], second["reservationId"])
	assert.Equal(t, first["expiresAt"], second["expiresAt"])

	// The retry held nothing extra.
	rec = post(t, mux, "/inventory/product-stock", `{"productId":"p-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(6), body["reserved"])

	// Once the reservation ends the same id is a conflict.
	rec = post(t, mux, "/inventory/commit", `{"reservationId":"r-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "not_active", body["error"])
	assert.Equal(t, "committed", body["status"])
}

func TestReserveEndpointInsufficientStock(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	rec := post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, mux, "/inventory/reserve", `{"reservationId":"r-2","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["error"])
	assert.Equal(t, "p-1", body["productId"])
	assert.Equal(t, float64(4), body["available"])
	assert.Equal(t, float64(6), body["requested"])
}

func TestReserveEndpointValidation(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	for _, body := range []string{
		`{"items":[{"productId":"p-1","qty":1}]}`,
		`{"reservationId":"r-1","items":[]}`,
		`{"reservationId":"r-1","items":[{"productId":"p-1","qty":1}],"ttl":30}`,
		`not json`,
	} {
		rec := post(t, mux, "/inventory/reserve", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
		assert.Equal(t, "validation_error", decode(t, rec)["error"])
	}
}

func TestReserveEndpointUnknownProduct(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	rec := post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"ghost","qty":1}]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "product_not_found", body["error"])
	assert.Equal(t, "ghost", body["productId"])
}

func TestCommitEndpointLifecycle(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	rec := post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, mux, "/inventory/commit", `{"reservationId":"r-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["committed"])

	// Second commit hits the terminal status.
	rec = post(t, mux, "/inventory/commit", `{"reservationId":"r-1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_active", body["error"])
	assert.Equal(t, "committed", body["status"])

	rec = post(t, mux, "/inventory/commit", `{"reservationId":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReleaseEndpoint(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	rec := post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, mux, "/inventory/release", `{"reservationId":"r-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["released"])

	rec = post(t, mux, "/inventory/release", `{"reservationId":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductStockEndpoint(t *testing.T) {
	mux := newTestMux(t, map[string]int64{"p-1": 10})

	rec := post(t, mux, "/inventory/reserve", `{"reservationId":"r-1","items":[{"productId":"p-1","qty":6}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, mux, "/inventory/product-stock", `{"productId":"p-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(10), body["stock"])
	assert.Equal(t, float64(6), body["reserved"])

	rec = post(t, mux, "/inventory/product-stock", `{"productId":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
