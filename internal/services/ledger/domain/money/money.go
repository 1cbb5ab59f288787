// Package money holds the decimal amount value object used by transfers,
// fees, and settlements.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	// DefaultScale is the default maximum number of decimal places.
	DefaultScale = 4
	// DefaultPrecision is the default maximum number of significant digits.
	DefaultPrecision = 18
)

var (
	// ErrInvalidAmount marks an amount that cannot be parsed or is not positive.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidCurrency marks a currency that is not an ISO 4217 code.
	ErrInvalidCurrency = errors.New("invalid currency")
	// ErrScaleExceeded marks an amount with too many decimal places.
	ErrScaleExceeded = errors.New("amount exceeds allowed scale")
	// ErrPrecisionExceeded marks an amount with too many significant digits.
	ErrPrecisionExceeded = errors.New("amount exceeds allowed precision")
)

// Amount is a decimal value in a currency.
type Amount struct {
	Value    decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Parse builds an Amount from its wire form. The value must be a positive
// decimal and the currency an ISO 4217 code; the code is upper-cased.
func Parse(value, code string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if !parsed.IsPositive() {
		return Amount{}, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, parsed.String())
	}
	cur, err := ParseCurrency(code)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: parsed, Currency: cur}, nil
}

// ParseCurrency validates code against ISO 4217 and returns it canonically.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// Equal reports whether both amounts carry the same numeric value and
// currency. Trailing zeros are not significant.
func (a Amount) Equal(other Amount) bool {
	return a.Currency == other.Currency && a.Value.Equal(other.Value)
}

// String renders the amount as "<value> <currency>".
func (a Amount) String() string {
	return a.Value.String() + " " + a.Currency
}

// Scale returns the number of decimal places after trailing zeros are
// dropped, so 10.50 has scale 1.
func Scale(value decimal.Decimal) int {
	text := value.Abs().String()
	_, frac, ok := strings.Cut(text, ".")
	if !ok {
		return 0
	}
	return len(frac)
}

// Precision returns the count of significant digits, ignoring leading zeros
// and trailing fractional zeros. 100 has precision 3 and 0.050 has 1.
func Precision(value decimal.Decimal) int {
	digits := strings.Replace(value.Abs().String(), ".", "", 1)
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return 1
	}
	return len(digits)
}

// Limits bounds the scale and precision of accepted amounts.
type Limits struct {
	Scale     int
	Precision int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{Scale: DefaultScale, Precision: DefaultPrecision}
}

// Check returns an error when amount falls outside the limits.
func (l Limits) Check(amount Amount) error {
	if scale := Scale(amount.Value); scale > l.Scale {
		return fmt.Errorf("%w: %s has %d decimal places, allowed %d", ErrScaleExceeded, amount.Value.String(), scale, l.Scale)
	}
	if precision := Precision(amount.Value); precision > l.Precision {
		return fmt.Errorf("%w: %s has %d digits, allowed %d", ErrPrecisionExceeded, amount.Value.String(), precision, l.Precision)
	}
	return nil
}
