// Package money implements the fixed-point Amount and Currency types used
// throughout the ledger kernel so no monetary value is ever represented as a
// float.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/transfa/ledger-kernel/internal/ledgererr"
)

// Scale is the number of fractional digits every Amount is normalised to.
const Scale = 4

// MaxDigits is the total number of significant digits (integer + fractional)
// an Amount may carry before it is considered an overflow.
const MaxDigits = 19

// Amount is a non-negative-or-negative fixed-point monetary value scaled to
// Scale fractional digits. The zero value is zero.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// NewAmount builds an Amount from a decimal string such as "25.0000".
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ledgererr.Wrapf(ledgererr.ErrInvalidAmount, "parse %q: %v", s, err)
	}
	return normalize(d)
}

// FromDecimal wraps an existing decimal.Decimal, validating scale.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	return normalize(d)
}

// MustAmount is NewAmount but panics on error; reserved for constants and tests.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func normalize(d decimal.Decimal) (Amount, error) {
	rounded := d.Round(Scale)
	digits := len(rounded.Coefficient().String())
	if digits > MaxDigits {
		return Amount{}, ledgererr.Wrapf(ledgererr.ErrInvariantViolated, "amount %s exceeds %d significant digits", rounded.String(), MaxDigits)
	}
	return Amount{d: rounded}, nil
}

// Decimal exposes the underlying decimal.Decimal for callers that need to
// hand it to a store driver.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// String renders the amount with exactly Scale fractional digits.
func (a Amount) String() string { return a.d.StringFixed(Scale) }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive reports a.d > 0.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// IsNegative reports a.d < 0.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int { return a.d.Sign() }

// Cmp compares two amounts the way decimal.Decimal.Cmp does.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports value equality.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// Add returns a+b, re-validating scale/overflow.
func (a Amount) Add(b Amount) (Amount, error) { return normalize(a.d.Add(b.d)) }

// Sub returns a-b, re-validating scale/overflow.
func (a Amount) Sub(b Amount) (Amount, error) { return normalize(a.d.Sub(b.d)) }

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

// Abs returns |a|.
func (a Amount) Abs() Amount { return Amount{d: a.d.Abs()} }

// MarshalJSON encodes the amount as a JSON string so precision survives.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", a.String())), nil
}

// UnmarshalJSON accepts either a JSON string or bare number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
