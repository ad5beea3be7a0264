package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/norun9/boutique-checkout/src/cartservice/cartstore"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore fails every operation with err and reports alive as its liveness.
type fakeStore struct {
	err   error
	alive bool
}

func (f *fakeStore) Initialize(context.Context) error { return nil }
func (f *fakeStore) AddItem(context.Context, string, string, int32) error {
	return f.err
}
func (f *fakeStore) EmptyCart(context.Context, string) error { return f.err }
func (f *fakeStore) GetCart(context.Context, string) (*hipstershop.Cart, error) {
	return nil, f.err
}
func (f *fakeStore) Ping(context.Context) bool { return f.alive }

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func newTestRouter(store cartstore.ICartStore) *mux.Router {
	r := mux.NewRouter()
	NewCartServiceServer(store, testLogger()).RegisterRoutes(r)
	r.Handle("/healthz", NewHealthCheckService(store)).Methods(http.MethodGet)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCartService_roundTrip(t *testing.T) {
	h := newTestRouter(cartstore.NewLocalCartStore(testLogger()))

	rec := do(t, h, http.MethodGet, "/v1/carts/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	for i := 0; i < 2; i++ {
		rec = do(t, h, http.MethodPost, "/v1/carts/u1/items", `{"productId":"X","quantity":2}`)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/v1/carts/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"userId":"u1","items":[{"productId":"X","quantity":4}]}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/v1/carts/u1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/v1/carts/u1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/carts/u1", "")
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestCartService_addItemValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "missing product", body: `{"quantity":1}`},
		{name: "zero quantity", body: `{"productId":"X","quantity":0}`},
		{name: "negative quantity", body: `{"productId":"X","quantity":-3}`},
		{name: "fractional quantity", body: `{"productId":"X","quantity":1.5}`},
		{name: "quantity as string", body: `{"productId":"X","quantity":"2"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cartstore.NewLocalCartStore(testLogger())
			h := newTestRouter(store)

			rec := do(t, h, http.MethodPost, "/v1/carts/u1/items", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"bad_request"`)

			cart, err := store.GetCart(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, cart.Items)
		})
	}
}

func TestCartService_storeErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{name: "backend failure", err: errors.New("connection reset"), wantCode: http.StatusInternalServerError, wantKind: "internal_error"},
		{name: "contention", err: cartstore.ErrTooManyConflicts, wantCode: http.StatusServiceUnavailable, wantKind: "conflict"},
		{name: "quantity overflow", err: fmt.Errorf("redis AddItem: %w", cartstore.ErrInvalidQuantity), wantCode: http.StatusBadRequest, wantKind: "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&fakeStore{err: tt.err})

			for _, req := range []struct{ method, path, body string }{
				{http.MethodPost, "/v1/carts/u1/items", `{"productId":"X","quantity":1}`},
				{http.MethodGet, "/v1/carts/u1", ""},
				{http.MethodDelete, "/v1/carts/u1", ""},
			} {
				rec := do(t, h, req.method, req.path, req.body)
				assert.Equal(t, tt.wantCode, rec.Code, req.method)
				assert.Contains(t, rec.Body.String(), `"error":"`+tt.wantKind+`"`, req.method)
			}
		})
	}
}

func TestHealthCheckService(t *testing.T) {
	rec := do(t, newTestRouter(&fakeStore{alive: true}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"SERVING"}`, rec.Body.String())

	rec = do(t, newTestRouter(&fakeStore{alive: false}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"NOT_SERVING"}`, rec.Body.String())
}
