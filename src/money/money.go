// Package money implements exact arithmetic on currency-tagged fixed-point
// amounts expressed as whole units plus nanos (10^-9) of a unit.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	nanosMin = -999999999
	nanosMax = +999999999
	nanosMod = 1000000000
)

var (
	// ErrInvalidValue is returned when an operand has out-of-range nanos or
	// units and nanos of opposite sign.
	ErrInvalidValue = errors.New("one of the specified money values is invalid")
	// ErrMismatchingCurrency is returned when operands carry different currency codes.
	ErrMismatchingCurrency = errors.New("mismatching currency codes")
)

// Money represents units + nanos*1e-9 of CurrencyCode.
type Money struct {
	CurrencyCode string `json:"currencyCode"`
	Units        int64  `json:"units"`
	Nanos        int32  `json:"nanos"`
}

// New returns a Money value. It does not validate its arguments.
func New(currencyCode string, units int64, nanos int32) Money {
	return Money{CurrencyCode: currencyCode, Units: units, Nanos: nanos}
}

// Zero returns the zero amount in the given currency.
func Zero(currencyCode string) Money {
	return Money{CurrencyCode: currencyCode}
}

func signMatches(m Money) bool {
	return m.Nanos == 0 || m.Units == 0 || (m.Nanos < 0) == (m.Units < 0)
}

func validNanos(nanos int32) bool { return nanosMin <= nanos && nanos <= nanosMax }

// IsValid checks if specified value has a valid units/nanos signs and ranges.
func IsValid(m Money) bool {
	return signMatches(m) && validNanos(m.Nanos)
}

// IsZero returns true if the specified money value is equal to zero.
func IsZero(m Money) bool { return m.Units == 0 && m.Nanos == 0 }

// IsPositive returns true if the specified money value is valid and is
// positive.
func IsPositive(m Money) bool {
	return IsValid(m) && (m.Units > 0 || (m.Units == 0 && m.Nanos > 0))
}

// IsNegative returns true if the specified money value is valid and is
// negative.
func IsNegative(m Money) bool {
	return IsValid(m) && (m.Units < 0 || (m.Units == 0 && m.Nanos < 0))
}

// AreSameCurrency returns true if values l and r have a currency code and
// they are the same values.
func AreSameCurrency(l, r Money) bool {
	return l.CurrencyCode == r.CurrencyCode && l.CurrencyCode != ""
}

// AreEquals returns true if values l and r are the equal, including the
// currency. This does not check validity of the provided values.
func AreEquals(l, r Money) bool {
	return l.CurrencyCode == r.CurrencyCode &&
		l.Units == r.Units && l.Nanos == r.Nanos
}

// Compare orders two values of the same currency. It returns -1, 0 or +1.
func Compare(l, r Money) (int, error) {
	if !IsValid(l) || !IsValid(r) {
		return 0, ErrInvalidValue
	}
	if l.CurrencyCode != r.CurrencyCode {
		return 0, ErrMismatchingCurrency
	}
	switch {
	case l.Units < r.Units:
		return -1, nil
	case l.Units > r.Units:
		return 1, nil
	case l.Nanos < r.Nanos:
		return -1, nil
	case l.Nanos > r.Nanos:
		return 1, nil
	}
	return 0, nil
}

// Negate returns the same amount with the sign negated.
func Negate(m Money) Money {
	return Money{
		Units:        -m.Units,
		Nanos:        -m.Nanos,
		CurrencyCode: m.CurrencyCode}
}

// Must panics if the given error is not nil. This can be used with other
// functions like: "m := Must(Sum(a,b))".
func Must(v Money, err error) Money {
	if err != nil {
		panic(err)
	}
	return v
}

// Sum adds two values. Returns an error if one of the values are invalid or
// currency codes are not matching (unless currency code is unspecified for
// both values).
func Sum(l, r Money) (Money, error) {
	if !IsValid(l) || !IsValid(r) {
		return Money{}, ErrInvalidValue
	} else if l.CurrencyCode != r.CurrencyCode {
		return Money{}, ErrMismatchingCurrency
	}
	units, nanos := normalize(l.Units+r.Units, int64(l.Nanos)+int64(r.Nanos))
	return Money{
		Units:        units,
		Nanos:        int32(nanos),
		CurrencyCode: l.CurrencyCode}, nil
}

// normalize carries or borrows so that |nanos| < 1e9 and units and nanos
// do not have opposite signs. The inputs are raw sums of two valid values.
func normalize(units, nanos int64) (int64, int64) {
	if units == 0 || nanos == 0 || (units > 0) == (nanos > 0) {
		// same sign <units, nanos>. Go division truncates toward zero, so
		// the carry keeps the sign of nanos.
		units += nanos / nanosMod
		nanos = nanos % nanosMod
	} else {
		// different sign. nanos guaranteed to not to go over the limit
		if units > 0 {
			units--
			nanos += nanosMod
		} else {
			units++
			nanos -= nanosMod
		}
	}
	return units, nanos
}

// MultiplySlow is a slow multiplication operation done through adding the value
// to itself n-1 times.
func MultiplySlow(m Money, n uint32) (Money, error) {
	if !IsValid(m) {
		return Money{}, ErrInvalidValue
	}
	out := m
	for n > 1 {
		var err error
		out, err = Sum(out, m)
		if err != nil {
			return Money{}, err
		}
		n--
	}
	return out, nil
}

// Decimal renders the amount as an exact decimal. It is meant for display
// and logging only.
func Decimal(m Money) decimal.Decimal {
	return decimal.New(m.Units, 0).Add(decimal.New(int64(m.Nanos), -9))
}

// String formats the amount as "<code> <units>.<fraction>", e.g. "USD 28.99".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.CurrencyCode, Decimal(m).StringFixedBank(2))
}
