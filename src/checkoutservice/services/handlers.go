package services

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const serviceName = "checkoutservice"

// NewOrdersCounter registers checkout_orders_total{outcome} on reg. The
// outcome is "placed" or the failure kind.
func NewOrdersCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(c)
	return c
}

// CheckoutHandler is the HTTP boundary of CheckoutService.
type CheckoutHandler struct {
	svc    *CheckoutService
	orders *prometheus.CounterVec
	log    logrus.FieldLogger
}

// NewCheckoutHandler returns a handler; orders may be nil.
func NewCheckoutHandler(svc *CheckoutService, orders *prometheus.CounterVec, log logrus.FieldLogger) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, orders: orders, log: log}
}

// RegisterRoutes mounts the checkout endpoints on r.
func (h *CheckoutHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/checkout/order", h.PlaceOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/checkout/health", h.Health).Methods(http.MethodGet)
}

// PlaceOrder handles POST /api/checkout/order.
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req hipstershop.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.count(KindInvalidRequest.String())
		writeError(w, http.StatusBadRequest, errorLabel(KindInvalidRequest), "invalid JSON body")
		return
	}

	resp, err := h.svc.PlaceOrder(r.Context(), &req)
	if err != nil {
		kind := KindOf(err)
		h.count(kind.String())
		var ce *CheckoutError
		if !errors.As(err, &ce) {
			h.log.WithError(err).Error("unexpected checkout error")
		}
		writeError(w, HTTPStatus(kind), errorLabel(kind), err.Error())
		return
	}
	h.count("placed")
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /api/checkout/health.
func (h *CheckoutHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hipstershop.HealthResponse{Status: hipstershop.StatusServing, Service: serviceName})
}

func (h *CheckoutHandler) count(outcome string) {
	if h.orders != nil {
		h.orders.WithLabelValues(outcome).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, label, message string) {
	writeJSON(w, code, hipstershop.ErrorResponse{Error: label, Message: message})
}
