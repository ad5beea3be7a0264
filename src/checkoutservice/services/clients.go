package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/norun9/boutique-checkout/src/money"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// CartClient reads and clears carts.
type CartClient interface {
	GetCart(ctx context.Context, userID string) (*hipstershop.Cart, error)
	EmptyCart(ctx context.Context, userID string) error
}

// ProductCatalogClient looks up products.
type ProductCatalogClient interface {
	GetProduct(ctx context.Context, productID string) (*hipstershop.Product, error)
}

// CurrencyClient converts money between currencies.
type CurrencyClient interface {
	Convert(ctx context.Context, from money.Money, toCurrency string) (money.Money, error)
}

// ShippingClient quotes and ships orders.
type ShippingClient interface {
	GetQuote(ctx context.Context, address *hipstershop.Address, items []*hipstershop.CartItem) (money.Money, error)
	ShipOrder(ctx context.Context, address *hipstershop.Address, items []*hipstershop.CartItem) (string, error)
}

// PaymentClient charges credit cards.
type PaymentClient interface {
	Charge(ctx context.Context, amount money.Money, card *hipstershop.CreditCardInfo) (string, error)
}

// EmailClient sends order confirmations.
type EmailClient interface {
	SendOrderConfirmation(ctx context.Context, email string, order *hipstershop.OrderResult) error
}

// Collaborators groups the services a checkout talks to.
type Collaborators struct {
	Cart     CartClient
	Catalog  ProductCatalogClient
	Currency CurrencyClient
	Shipping ShippingClient
	Payment  PaymentClient
	Email    EmailClient
}

// Endpoints holds the base address of every collaborator.
type Endpoints struct {
	Cart           string
	ProductCatalog string
	Currency       string
	Shipping       string
	Payment        string
	Email          string
}

// NewHTTPCollaborators returns HTTP+JSON clients for ep. Every call is
// bounded by timeout and traced.
func NewHTTPCollaborators(ep Endpoints, timeout time.Duration) Collaborators {
	hc := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	newClient := func(addr string) *jsonClient {
		return &jsonClient{base: baseURL(addr), hc: hc, timeout: timeout}
	}
	return Collaborators{
		Cart:     &httpCartClient{c: newClient(ep.Cart)},
		Catalog:  &httpCatalogClient{c: newClient(ep.ProductCatalog)},
		Currency: &httpCurrencyClient{c: newClient(ep.Currency)},
		Shipping: &httpShippingClient{c: newClient(ep.Shipping)},
		Payment:  &httpPaymentClient{c: newClient(ep.Payment)},
		Email:    &httpEmailClient{c: newClient(ep.Email)},
	}
}

// baseURL accepts "host:port" as well as a full URL.
func baseURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

type jsonClient struct {
	base    string
	hc      *http.Client
	timeout time.Duration
}

// do sends in (if non-nil) as JSON and decodes a 2xx response into out (if non-nil).
func (c *jsonClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

type httpCartClient struct{ c *jsonClient }

func (h *httpCartClient) GetCart(ctx context.Context, userID string) (*hipstershop.Cart, error) {
	var cart hipstershop.Cart
	if err := h.c.do(ctx, http.MethodGet, "/v1/carts/"+url.PathEscape(userID), nil, nil, &cart); err != nil {
		return nil, errors.Wrap(err, "failed to get user cart during checkout")
	}
	return &cart, nil
}

func (h *httpCartClient) EmptyCart(ctx context.Context, userID string) error {
	if err := h.c.do(ctx, http.MethodDelete, "/v1/carts/"+url.PathEscape(userID), nil, nil, nil); err != nil {
		return errors.Wrap(err, "failed to empty user cart during checkout")
	}
	return nil
}

type httpCatalogClient struct{ c *jsonClient }

func (h *httpCatalogClient) GetProduct(ctx context.Context, productID string) (*hipstershop.Product, error) {
	var p hipstershop.Product
	if err := h.c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(productID), nil, nil, &p); err != nil {
		return nil, errors.Wrapf(err, "failed to get product #%q", productID)
	}
	return &p, nil
}

type httpCurrencyClient struct{ c *jsonClient }

func (h *httpCurrencyClient) Convert(ctx context.Context, from money.Money, toCurrency string) (money.Money, error) {
	q := url.Values{}
	q.Set("from_currency", from.CurrencyCode)
	q.Set("from_units", strconv.FormatInt(from.Units, 10))
	q.Set("from_nanos", strconv.FormatInt(int64(from.Nanos), 10))
	q.Set("to_currency", toCurrency)

	var out money.Money
	if err := h.c.do(ctx, http.MethodGet, "/api/convert", q, nil, &out); err != nil {
		return money.Money{}, errors.Wrap(err, "failed to convert currency")
	}
	return out, nil
}

type httpShippingClient struct{ c *jsonClient }

func (h *httpShippingClient) GetQuote(ctx context.Context, address *hipstershop.Address, items []*hipstershop.CartItem) (money.Money, error) {
	var out hipstershop.GetQuoteResponse
	req := hipstershop.ShippingRequest{Address: address, Items: items}
	if err := h.c.do(ctx, http.MethodPost, "/api/shipping/quote", nil, req, &out); err != nil {
		return money.Money{}, errors.Wrap(err, "failed to get shipping quote")
	}
	if out.CostUsd == nil {
		return money.Money{}, errors.New("failed to get shipping quote: response has no costUsd")
	}
	return *out.CostUsd, nil
}

func (h *httpShippingClient) ShipOrder(ctx context.Context, address *hipstershop.Address, items []*hipstershop.CartItem) (string, error) {
	var out hipstershop.ShipOrderResponse
	req := hipstershop.ShippingRequest{Address: address, Items: items}
	if err := h.c.do(ctx, http.MethodPost, "/api/shipping/ship", nil, req, &out); err != nil {
		return "", errors.Wrap(err, "shipment failed")
	}
	return out.TrackingId, nil
}

type httpPaymentClient struct{ c *jsonClient }

func (h *httpPaymentClient) Charge(ctx context.Context, amount money.Money, card *hipstershop.CreditCardInfo) (string, error) {
	var out hipstershop.ChargeResponse
	req := hipstershop.ChargeRequest{Amount: &amount, CreditCard: card}
	if err := h.c.do(ctx, http.MethodPost, "/api/payment/charge", nil, req, &out); err != nil {
		return "", errors.Wrap(err, "could not charge the card")
	}
	return out.TransactionId, nil
}

type httpEmailClient struct{ c *jsonClient }

func (h *httpEmailClient) SendOrderConfirmation(ctx context.Context, email string, order *hipstershop.OrderResult) error {
	req := hipstershop.SendOrderConfirmationRequest{Email: email, Order: order}
	if err := h.c.do(ctx, http.MethodPost, "/api/email/confirmation", nil, req, nil); err != nil {
		return errors.Wrap(err, "failed to send order confirmation")
	}
	return nil
}
