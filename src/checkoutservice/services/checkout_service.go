package services

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/norun9/boutique-checkout/src/hipstershop"
	"github.com/norun9/boutique-checkout/src/money"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/currency"
)

// CheckoutService runs the checkout saga against its collaborators.
//
// Steps run strictly in order and the first mandatory failure ends the
// request. Nothing is compensated: a failure after Charge leaves the card
// charged, which is reported to OrderEvents with Charged set.
type CheckoutService struct {
	clients  Collaborators
	events   OrderEvents
	validate *validator.Validate
	tracer   trace.Tracer
	log      logrus.FieldLogger

	// publishTimeout bounds each OrderEvents.Publish so a stalled broker
	// cannot hold the response of an order that is already charged.
	publishTimeout time.Duration
}

const defaultPublishTimeout = 2 * time.Second

// NewCheckoutService creates a service. A nil events publishes nothing.
func NewCheckoutService(clients Collaborators, events OrderEvents, log logrus.FieldLogger) *CheckoutService {
	if events == nil {
		events = NoopOrderEvents{}
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &CheckoutService{
		clients:  clients,
		events:   events,
		validate: v,
		tracer:   otel.Tracer("checkoutservice"),
		log:      log,

		publishTimeout: defaultPublishTimeout,
	}
}

// orderPrep is what the saga knows before any money moves.
type orderPrep struct {
	cartItems             []*hipstershop.CartItem
	orderItems            []*hipstershop.OrderItem
	shippingCostLocalized money.Money
}

// PlaceOrder validates req, prices the user's cart, charges the card, ships,
// clears the cart and sends a confirmation email. Every returned error is a
// *CheckoutError.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req *hipstershop.PlaceOrderRequest) (*hipstershop.PlaceOrderResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("app.user_id", req.UserId),
		attribute.String("app.user_currency", req.UserCurrency),
		attribute.String("app.order_id", orderID),
	)

	log := s.log.WithFields(logrus.Fields{"user_id": req.UserId, "user_currency": req.UserCurrency, "order_id": orderID})
	log.Info("[PlaceOrder] starting checkout")

	var transactionID string
	failed := func(err *CheckoutError, total *money.Money) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Kind.String())
		log.WithError(err.Err).WithFields(logrus.Fields{"step": err.Step, "kind": err.Kind.String()}).Error("checkout failed")

		evt := newOrderEvent(EventCheckoutFailed, orderID, req.UserId, req.UserCurrency)
		evt.Total = total
		evt.TransactionID = transactionID
		evt.Charged = transactionID != ""
		evt.Step = err.Step
		evt.Kind = err.Kind.String()
		evt.Error = err.Err.Error()
		s.publish(ctx, log, evt)
		return err
	}

	prep, cerr := s.prepareOrderItemsAndShippingQuoteFromCart(ctx, log, req.UserId, req.UserCurrency, req.Address)
	if cerr != nil {
		return nil, failed(cerr, nil)
	}

	total, err := computeTotal(req.UserCurrency, prep)
	if err != nil {
		return nil, failed(fail(KindMoneyArithmetic, StepComputeTotal, err), nil)
	}
	log.WithFields(logrus.Fields{"step": StepComputeTotal, "total": total.String()}).Debug("order total computed")
	span.SetAttributes(attribute.String("app.total", total.String()))

	transactionID, err = s.clients.Payment.Charge(ctx, total, req.CreditCard)
	if err != nil {
		return nil, failed(fail(KindPayment, StepCharge, err), &total)
	}
	log.WithFields(logrus.Fields{"step": StepCharge, "transaction_id": transactionID}).Info("payment went through")

	trackingID, err := s.clients.Shipping.ShipOrder(ctx, req.Address, prep.cartItems)
	if err != nil {
		return nil, failed(fail(KindShipping, StepShip, err), &total)
	}
	log.WithFields(logrus.Fields{"step": StepShip, "tracking_id": trackingID}).Info("order shipped")

	if err := s.clients.Cart.EmptyCart(ctx, req.UserId); err != nil {
		return nil, failed(fail(KindCartAccess, StepClearCart, err), &total)
	}

	shippingCost := prep.shippingCostLocalized
	order := &hipstershop.OrderResult{
		OrderId:            orderID,
		ShippingTrackingId: trackingID,
		ShippingCost:       &shippingCost,
		ShippingAddress:    req.Address,
		Items:              prep.orderItems,
	}

	if err := s.clients.Email.SendOrderConfirmation(ctx, req.Email, order); err != nil {
		log.WithError(err).WithField("step", StepNotifyEmail).Warnf("failed to send order confirmation to %q", req.Email)
	} else {
		log.WithField("step", StepNotifyEmail).Infof("order confirmation email sent to %q", req.Email)
	}

	evt := newOrderEvent(EventOrderPlaced, orderID, req.UserId, req.UserCurrency)
	evt.Total = &total
	evt.TransactionID = transactionID
	evt.TrackingID = trackingID
	evt.Charged = true
	s.publish(ctx, log, evt)

	log.WithField("total", total.String()).Info("[PlaceOrder] order placed")
	return &hipstershop.PlaceOrderResponse{Order: order}, nil
}

func (s *CheckoutService) validateRequest(req *hipstershop.PlaceOrderRequest) error {
	if req == nil {
		return fail(KindInvalidRequest, StepValidate, errors.New("request body is required"))
	}
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fail(KindInvalidRequest, StepValidate, fmt.Errorf("%s is required", fieldErrs[0].Field()))
		}
		return fail(KindInvalidRequest, StepValidate, err)
	}
	unit, err := currency.ParseISO(req.UserCurrency)
	if err != nil || unit.String() != req.UserCurrency {
		return fail(KindInvalidRequest, StepValidate, fmt.Errorf("userCurrency %q is not an ISO 4217 currency code", req.UserCurrency))
	}
	return nil
}

func (s *CheckoutService) prepareOrderItemsAndShippingQuoteFromCart(ctx context.Context, log logrus.FieldLogger, userID, userCurrency string, address *hipstershop.Address) (*orderPrep, *CheckoutError) {
	cart, err := s.clients.Cart.GetCart(ctx, userID)
	if err != nil {
		return nil, fail(KindCartAccess, StepFetchCart, err)
	}
	var cartItems []*hipstershop.CartItem
	if cart != nil {
		cartItems = cart.Items
	}
	if cartItems == nil {
		cartItems = []*hipstershop.CartItem{}
	}
	for i, item := range cartItems {
		if item == nil || item.ProductId == "" {
			return nil, fail(KindCartAccess, StepFetchCart, errors.Errorf("cart of user %q has a malformed item at position %d", userID, i))
		}
	}
	log.WithFields(logrus.Fields{"step": StepFetchCart, "items": len(cartItems)}).Debug("cart fetched")

	orderItems, err := s.prepOrderItems(ctx, cartItems, userCurrency)
	if err != nil {
		return nil, fail(KindProductPricing, StepPriceItems, err)
	}

	shippingUSD, err := s.clients.Shipping.GetQuote(ctx, address, cartItems)
	if err != nil {
		return nil, fail(KindShipping, StepQuoteShipping, err)
	}
	log.WithFields(logrus.Fields{"step": StepQuoteShipping, "cost_usd": shippingUSD.String()}).Debug("shipping quoted")

	shippingPrice, err := s.clients.Currency.Convert(ctx, shippingUSD, userCurrency)
	if err != nil {
		return nil, fail(KindCurrencyConversion, StepConvertShipping, err)
	}

	return &orderPrep{
		cartItems:             cartItems,
		orderItems:            orderItems,
		shippingCostLocalized: shippingPrice,
	}, nil
}

// prepOrderItems prices each item in turn; one failure fails them all.
func (s *CheckoutService) prepOrderItems(ctx context.Context, items []*hipstershop.CartItem, userCurrency string) ([]*hipstershop.OrderItem, error) {
	out := make([]*hipstershop.OrderItem, 0, len(items))
	for _, item := range items {
		product, err := s.clients.Catalog.GetProduct(ctx, item.ProductId)
		if err != nil {
			return nil, err
		}
		if product.PriceUsd == nil {
			return nil, errors.Errorf("product #%q has no price", item.ProductId)
		}
		price, err := s.clients.Currency.Convert(ctx, *product.PriceUsd, userCurrency)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to convert price of #%q to %s", item.ProductId, userCurrency)
		}
		cp := *item
		out = append(out, &hipstershop.OrderItem{Item: &cp, Cost: &price})
	}
	return out, nil
}

// computeTotal adds the shipping cost and cost*quantity of every item. All
// amounts must already be in userCurrency.
func computeTotal(userCurrency string, prep *orderPrep) (money.Money, error) {
	total, err := money.Sum(money.Zero(userCurrency), prep.shippingCostLocalized)
	if err != nil {
		return money.Money{}, errors.Wrap(err, "failed to add shipping cost")
	}
	for _, it := range prep.orderItems {
		if it.Item.Quantity <= 0 {
			return money.Money{}, errors.Wrapf(money.ErrInvalidValue, "quantity %d of #%q", it.Item.Quantity, it.Item.ProductId)
		}
		line, err := money.MultiplySlow(*it.Cost, uint32(it.Item.Quantity))
		if err != nil {
			return money.Money{}, errors.Wrapf(err, "failed to price #%q", it.Item.ProductId)
		}
		if total, err = money.Sum(total, line); err != nil {
			return money.Money{}, errors.Wrapf(err, "failed to add #%q", it.Item.ProductId)
		}
	}
	return total, nil
}

// publish is best-effort. It outlives a cancelled request but not
// publishTimeout.
func (s *CheckoutService) publish(ctx context.Context, log logrus.FieldLogger, evt OrderEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, evt); err != nil {
		log.WithError(err).WithField("event", evt.Type).Warn("failed to publish order event")
	}
}
