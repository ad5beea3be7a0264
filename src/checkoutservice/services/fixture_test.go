package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/norun9/boutique-checkout/src/cartservice/cartstore"
	cartsvc "github.com/norun9/boutique-checkout/src/cartservice/services"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/norun9/boutique-checkout/src/money"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// recordingEvents keeps every published event.
type recordingEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, evt OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recordingEvents) all() []OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OrderEvent(nil), r.events...)
}

// boutique serves every collaborator of the checkout from one httptest
// server. The cart is the real cart API over a LocalCartStore.
type boutique struct {
	t *testing.T

	cart     *cartstore.LocalCartStore
	products map[string]*hipstershop.Product
	shipping money.Money
	calls    atomic.Int32

	mu sync.Mutex
	// failing maps "METHOD /path/template" to the status it answers with.
	failing map[string]int
	// convertFailing maps from_units of a conversion to the status it answers with.
	convertFailing map[int64]int
	charges        []hipstershop.ChargeRequest
	emails         []hipstershop.SendOrderConfirmationRequest
	ships          int

	orders *prometheus.CounterVec
	server *httptest.Server
}

func newBoutique(t *testing.T) *boutique {
	t.Helper()
	b := &boutique{
		t:    t,
		cart: cartstore.NewLocalCartStore(testLogger()),
		products: map[string]*hipstershop.Product{
			"P1": {Id: "P1", Name: "Vintage Typewriter", PriceUsd: &money.Money{CurrencyCode: "USD", Units: 10}},
			"P2": {Id: "P2", Name: "Film Camera", PriceUsd: &money.Money{CurrencyCode: "USD", Units: 2, Nanos: 500000000}},
		},
		shipping:       money.Money{CurrencyCode: "USD", Units: 8, Nanos: 990000000},
		failing:        map[string]int{},
		convertFailing: map[int64]int{},
	}

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			b.calls.Add(1)
			if tpl, err := mux.CurrentRoute(req).GetPathTemplate(); err == nil {
				b.mu.Lock()
				code, ok := b.failing[req.Method+" "+tpl]
				b.mu.Unlock()
				if ok {
					http.Error(w, "injected failure", code)
					return
				}
			}
			next.ServeHTTP(w, req)
		})
	})
	cartsvc.NewCartServiceServer(b.cart, testLogger()).RegisterRoutes(r)
	r.HandleFunc("/api/products/{id}", b.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/api/convert", b.convert).Methods(http.MethodGet)
	r.HandleFunc("/api/shipping/quote", b.quote).Methods(http.MethodPost)
	r.HandleFunc("/api/shipping/ship", b.ship).Methods(http.MethodPost)
	r.HandleFunc("/api/payment/charge", b.charge).Methods(http.MethodPost)
	r.HandleFunc("/api/email/confirmation", b.email).Methods(http.MethodPost)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

func (b *boutique) fail(method, pathTemplate string, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[method+" "+pathTemplate] = code
}

// failConvert makes conversions of amounts with the given units fail.
func (b *boutique) failConvert(units int64, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.convertFailing[units] = code
}

func (b *boutique) endpoints() Endpoints {
	u := b.server.URL
	return Endpoints{Cart: u, ProductCatalog: u, Currency: u, Shipping: u, Payment: u, Email: u}
}

func (b *boutique) addToCart(userID, productID string, qty int32) {
	require.NoError(b.t, b.cart.AddItem(context.Background(), userID, productID, qty))
}

func (b *boutique) cartOf(userID string) []*hipstershop.CartItem {
	c, err := b.cart.GetCart(context.Background(), userID)
	require.NoError(b.t, err)
	return c.Items
}

func (b *boutique) getProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := b.products[mux.Vars(r)["id"]]
	if !ok {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// convert doubles amounts converted to EUR and passes USD through.
func (b *boutique) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	units, err1 := strconv.ParseInt(q.Get("from_units"), 10, 64)
	nanos, err2 := strconv.ParseInt(q.Get("from_nanos"), 10, 32)
	if err1 != nil || err2 != nil || q.Get("from_currency") != "USD" {
		http.Error(w, "bad conversion request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	code, failing := b.convertFailing[units]
	b.mu.Unlock()
	if failing {
		http.Error(w, "injected conversion failure", code)
		return
	}
	from := money.Money{CurrencyCode: "USD", Units: units, Nanos: int32(nanos)}
	switch q.Get("to_currency") {
	case "USD":
		writeJSON(w, http.StatusOK, from)
	case "EUR":
		out := money.Must(money.Sum(from, from))
		out.CurrencyCode = "EUR"
		writeJSON(w, http.StatusOK, out)
	default:
		http.Error(w, "unsupported currency", http.StatusBadRequest)
	}
}

func (b *boutique) quote(w http.ResponseWriter, r *http.Request) {
	var req hipstershop.ShippingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == nil {
		http.Error(w, "bad quote request", http.StatusBadRequest)
		return
	}
	cost := b.shipping
	writeJSON(w, http.StatusOK, hipstershop.GetQuoteResponse{CostUsd: &cost})
}

func (b *boutique) ship(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.ships++
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, hipstershop.ShipOrderResponse{TrackingId: "TRACK-123"})
}

func (b *boutique) charge(w http.ResponseWriter, r *http.Request) {
	var req hipstershop.ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad charge request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.charges = append(b.charges, req)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, hipstershop.ChargeResponse{TransactionId: "TX-1"})
}

func (b *boutique) email(w http.ResponseWriter, r *http.Request) {
	var req hipstershop.SendOrderConfirmationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad email request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.emails = append(b.emails, req)
	b.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (b *boutique) chargeAt(i int) hipstershop.ChargeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.charges[i]
}

func (b *boutique) chargeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.charges)
}

// checkout wires a CheckoutService to the boutique and returns its router.
func (b *boutique) checkout(events OrderEvents, reg prometheus.Registerer) http.Handler {
	svc := NewCheckoutService(NewHTTPCollaborators(b.endpoints(), 2*time.Second), events, testLogger())
	if reg != nil {
		b.orders = NewOrdersCounter(reg)
	}
	r := mux.NewRouter()
	NewCheckoutHandler(svc, b.orders, testLogger()).RegisterRoutes(r)
	return r
}

func validOrderRequest(userID string) *hipstershop.PlaceOrderRequest {
	return &hipstershop.PlaceOrderRequest{
		UserId:       userID,
		UserCurrency: "USD",
		Email:        "someone@example.com",
		Address:      &hipstershop.Address{City: "Mountain View"},
		CreditCard:   &hipstershop.CreditCardInfo{CreditCardNumber: "4432-8015-6152-0454"},
	}
}

func validOrderBody(userID, currency string) map[string]any {
	return map[string]any{
		"userId":       userID,
		"userCurrency": currency,
		"email":        "someone@example.com",
		"address": map[string]any{
			"streetAddress": "1600 Amphitheatre Parkway",
			"city":          "Mountain View",
			"state":         "CA",
			"country":       "United States",
			"zipCode":       94043,
		},
		"creditCard": map[string]any{
			"creditCardNumber":          "4432-8015-6152-0454",
			"creditCardCvv":             672,
			"creditCardExpirationYear":  2030,
			"creditCardExpirationMonth": 1,
		},
	}
}
