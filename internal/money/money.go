// Package money implements a fixed-point currency value.
//
// Amounts are always held as integer minor units (cents, đồng, ...). Conversion
// to and from the decimal display form happens only in Parse and String.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when combining amounts of different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrUnknownCurrency is returned for currency codes without a known exponent.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrOverflow is returned when an operation does not fit in int64 minor units.
	ErrOverflow = errors.New("amount overflow")
	// ErrPrecision is returned when a display amount has more decimals than the currency allows.
	ErrPrecision = errors.New("amount has too many decimal places")
)

// exponents maps supported currency codes to the number of minor-unit digits.
var exponents = map[string]int32{
	"VND": 0,
	"USD": 2,
	"EUR": 2,
}

var (
	maxAmount = decimal.NewFromInt(math.MaxInt64)
	minAmount = decimal.NewFromInt(math.MinInt64)
)

// Money is an amount in minor units of a single currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New returns a Money of amount minor units.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns the zero amount of the currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// Exponent returns the number of minor-unit digits for the currency.
func Exponent(currency string) (int32, error) {
	exp, ok := exponents[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return exp, nil
}

// Supported reports whether the currency code is known.
func Supported(currency string) bool {
	_, ok := exponents[strings.ToUpper(currency)]
	return ok
}

// Parse converts a display amount such as "12.50" into minor units.
func Parse(s, currency string) (Money, error) {
	currency = strings.ToUpper(currency)
	exp, err := Exponent(currency)
	if err != nil {
		return Money{}, err
	}

	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d, currency, exp)
}

// FromDecimal converts a decimal display amount with the given exponent into minor units.
func FromDecimal(d decimal.Decimal, currency string, exp int32) (Money, error) {
	minor := d.Shift(exp)
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("%w: %s %s", ErrPrecision, d.String(), currency)
	}
	if minor.GreaterThan(maxAmount) || minor.LessThan(minAmount) {
		return Money{}, fmt.Errorf("%w: %s %s", ErrOverflow, d.String(), currency)
	}
	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

// Decimal returns the display value of m.
func (m Money) Decimal() decimal.Decimal {
	exp, err := Exponent(m.Currency)
	if err != nil {
		return decimal.NewFromInt(m.Amount)
	}
	return decimal.New(m.Amount, -exp)
}

// String formats m as "<amount> <currency>" with the currency's fixed decimals.
func (m Money) String() string {
	exp, err := Exponent(m.Currency)
	if err != nil {
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}
	return decimal.New(m.Amount, -exp).StringFixed(exp) + " " + m.Currency
}

// Add returns m + o.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	sum := m.Amount + o.Amount
	if (o.Amount > 0 && sum < m.Amount) || (o.Amount < 0 && sum > m.Amount) {
		return Money{}, ErrOverflow
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// Sub returns m - o.
func (m Money) Sub(o Money) (Money, error) {
	if o.Amount == math.MinInt64 {
		return Money{}, ErrOverflow
	}
	return m.Add(o.Neg())
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Abs returns |m|.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return m.Neg()
	}
	return m
}

// Sign returns -1, 0 or 1.
func (m Money) Sign() int {
	switch {
	case m.Amount < 0:
		return -1
	case m.Amount > 0:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether m is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsPositive reports whether m is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// Cmp compares two amounts of the same currency.
func (m Money) Cmp(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Sum adds all values, which must share currency.
func Sum(currency string, values ...Money) (Money, error) {
	total := Zero(currency)
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
