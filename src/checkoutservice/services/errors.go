package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a checkout failed.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindCartAccess
	KindProductPricing
	KindCurrencyConversion
	KindShipping
	KindPayment
	KindMoneyArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindCartAccess:
		return "cart_access"
	case KindProductPricing:
		return "product_pricing"
	case KindCurrencyConversion:
		return "currency_conversion"
	case KindShipping:
		return "shipping"
	case KindPayment:
		return "payment"
	case KindMoneyArithmetic:
		return "money_arithmetic"
	default:
		return "internal"
	}
}

// Step names a stage of the checkout saga.
type Step string

const (
	StepValidate        Step = "Validate"
	StepFetchCart       Step = "FetchCart"
	StepPriceItems      Step = "PriceItems"
	StepQuoteShipping   Step = "QuoteShipping"
	StepConvertShipping Step = "ConvertShipping"
	StepComputeTotal    Step = "ComputeTotal"
	StepCharge          Step = "Charge"
	StepShip            Step = "Ship"
	StepClearCart       Step = "ClearCart"
	StepNotifyEmail     Step = "NotifyEmail"
)

// CheckoutError is returned by PlaceOrder for every terminal failure.
type CheckoutError struct {
	Kind Kind
	Step Step
	Err  error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

func fail(kind Kind, step Step, err error) *CheckoutError {
	return &CheckoutError{Kind: kind, Step: step, Err: err}
}

// KindOf returns the Kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// HTTPStatus maps a failure kind to the status reported to the caller.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidRequest, KindCartAccess:
		return http.StatusBadRequest
	case KindShipping:
		return http.StatusServiceUnavailable
	case KindPayment:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// errorLabel is the "error" field of the response body.
func errorLabel(k Kind) string {
	switch k {
	case KindInvalidRequest:
		return "Bad Request"
	case KindCartAccess:
		return "Cart Error"
	case KindShipping:
		return "Shipping Unavailable"
	case KindPayment:
		return "Payment Failed"
	default:
		return "Internal Server Error"
	}
}
