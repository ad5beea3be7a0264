// Package hipstershop defines the JSON wire types exchanged between the
// boutique services, replacing the protobuf-generated types.
package hipstershop

import "github.com/norun9/boutique-checkout/src/money"

// CartItem is a product and how many of it are in a cart.
type CartItem struct {
	ProductId string `json:"productId" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"gt=0"`
}

// Cart is a user's cart. UserId is omitted for a cart that was never written.
type Cart struct {
	UserId string      `json:"userId,omitempty"`
	Items  []*CartItem `json:"items"`
}

// AddItemRequest is the body of POST /v1/carts/{userId}/items.
type AddItemRequest struct {
	ProductId string `json:"productId" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"gt=0"`
}

// Product is the subset of a catalog product used at checkout.
type Product struct {
	Id          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Picture     string       `json:"picture,omitempty"`
	PriceUsd    *money.Money `json:"priceUsd"`
	Categories  []string     `json:"categories,omitempty"`
}

// Address represents a shipping address.
type Address struct {
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
	ZipCode       int32  `json:"zipCode"`
}

// CreditCardInfo represents credit card details.
type CreditCardInfo struct {
	CreditCardNumber          string `json:"creditCardNumber"`
	CreditCardCvv             int32  `json:"creditCardCvv"`
	CreditCardExpirationYear  int32  `json:"creditCardExpirationYear"`
	CreditCardExpirationMonth int32  `json:"creditCardExpirationMonth"`
}

// OrderItem is a cart item priced in the buyer's currency. Cost is per unit.
type OrderItem struct {
	Item *CartItem    `json:"item"`
	Cost *money.Money `json:"cost"`
}

// OrderResult represents the result of a completed order.
type OrderResult struct {
	OrderId            string       `json:"orderId"`
	ShippingTrackingId string       `json:"shippingTrackingId"`
	ShippingCost       *money.Money `json:"shippingCost"`
	ShippingAddress    *Address     `json:"shippingAddress"`
	Items              []*OrderItem `json:"items"`
}

// PlaceOrderRequest represents a checkout request.
type PlaceOrderRequest struct {
	UserId       string          `json:"userId" validate:"required"`
	UserCurrency string          `json:"userCurrency" validate:"required"`
	Address      *Address        `json:"address" validate:"required"`
	Email        string          `json:"email" validate:"required"`
	CreditCard   *CreditCardInfo `json:"creditCard" validate:"required"`
}

// PlaceOrderResponse wraps an OrderResult.
type PlaceOrderResponse struct {
	Order *OrderResult `json:"order"`
}

// ShippingRequest is the body of both shipping calls.
type ShippingRequest struct {
	Address *Address    `json:"address"`
	Items   []*CartItem `json:"items"`
}

// GetQuoteResponse is returned by POST /api/shipping/quote.
type GetQuoteResponse struct {
	CostUsd *money.Money `json:"costUsd"`
}

// ShipOrderResponse is returned by POST /api/shipping/ship.
type ShipOrderResponse struct {
	TrackingId string `json:"trackingId"`
}

// ChargeRequest is the body of POST /api/payment/charge.
type ChargeRequest struct {
	Amount     *money.Money    `json:"amount"`
	CreditCard *CreditCardInfo `json:"creditCard"`
}

// ChargeResponse is returned by the payment service.
type ChargeResponse struct {
	TransactionId string `json:"transactionId"`
}

// SendOrderConfirmationRequest is the body of POST /api/email/confirmation.
type SendOrderConfirmationRequest struct {
	Email string       `json:"email"`
	Order *OrderResult `json:"order"`
}

// ErrorResponse is the error body used by every service.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)
