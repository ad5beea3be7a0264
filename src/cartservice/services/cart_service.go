package services

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/norun9/boutique-checkout/src/cartservice/cartstore"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CartServiceServer serves the cart HTTP API on top of an ICartStore.
type CartServiceServer struct {
	store    cartstore.ICartStore
	validate *validator.Validate
	tracer   trace.Tracer
	log      logrus.FieldLogger
}

// NewCartServiceServer creates a server instance with a store injected.
func NewCartServiceServer(store cartstore.ICartStore, log logrus.FieldLogger) *CartServiceServer {
	return &CartServiceServer{
		store:    store,
		validate: validator.New(),
		tracer:   otel.Tracer("cartservice"),
		log:      log,
	}
}

// RegisterRoutes mounts the cart endpoints on r.
func (s *CartServiceServer) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/carts/{userId}/items", s.AddItem).Methods(http.MethodPost)
	r.HandleFunc("/v1/carts/{userId}", s.GetCart).Methods(http.MethodGet)
	r.HandleFunc("/v1/carts/{userId}", s.EmptyCart).Methods(http.MethodDelete)
}

// AddItem handles POST /v1/carts/{userId}/items.
func (s *CartServiceServer) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	ctx, span := s.tracer.Start(r.Context(), "AddItem")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID))

	var req hipstershop.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "productId is required and quantity must be greater than 0")
		return
	}
	span.SetAttributes(
		attribute.String("app.product_id", req.ProductId),
		attribute.Int64("app.quantity", int64(req.Quantity)),
	)

	if err := s.store.AddItem(ctx, userID, req.ProductId, req.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "AddItem failed")
		s.writeStoreError(w, "AddItem", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCart handles GET /v1/carts/{userId}.
func (s *CartServiceServer) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	ctx, span := s.tracer.Start(r.Context(), "GetCart")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID))

	cart, err := s.store.GetCart(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "GetCart failed")
		s.writeStoreError(w, "GetCart", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// EmptyCart handles DELETE /v1/carts/{userId}.
func (s *CartServiceServer) EmptyCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	ctx, span := s.tracer.Start(r.Context(), "EmptyCart")
	defer span.End()
	span.SetAttributes(attribute.String("app.user_id", userID))

	if err := s.store.EmptyCart(ctx, userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "EmptyCart failed")
		s.writeStoreError(w, "EmptyCart", userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CartServiceServer) writeStoreError(w http.ResponseWriter, op, userID string, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{"op": op, "user_id": userID}).Error("cart store failed")
	if errors.Is(err, cartstore.ErrInvalidQuantity) {
		writeError(w, http.StatusBadRequest, "bad_request", "quantity would exceed the allowed maximum")
		return
	}
	if errors.Is(err, cartstore.ErrTooManyConflicts) {
		writeError(w, http.StatusServiceUnavailable, "conflict", "cart is being modified concurrently, retry later")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", op+" failed")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, hipstershop.ErrorResponse{Error: kind, Message: message})
}
