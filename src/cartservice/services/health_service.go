package services

import (
	"net/http"

	"github.com/norun9/boutique-checkout/src/cartservice/cartstore"
	"github.com/norun9/boutique-checkout/src/hipstershop"
)

// HealthCheckService reports the cart backend's liveness over HTTP.
type HealthCheckService struct {
	store cartstore.ICartStore
}

// NewHealthCheckService constructor
func NewHealthCheckService(store cartstore.ICartStore) *HealthCheckService {
	return &HealthCheckService{store: store}
}

// ServeHTTP calls ICartStore.Ping and answers 200 SERVING or 503 NOT_SERVING.
func (h *HealthCheckService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.store.Ping(r.Context()) {
		writeJSON(w, http.StatusOK, hipstershop.HealthResponse{Status: hipstershop.StatusServing})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, hipstershop.HealthResponse{Status: hipstershop.StatusNotServing})
}
