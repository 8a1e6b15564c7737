package money

import (
	"strings"

	"github.com/transfa/ledger-kernel/internal/ledgererr"
)

// Currency is a 3-letter ISO-4217 code, always stored upper-case.
type Currency string

// ParseCurrency validates and normalises a currency code.
func ParseCurrency(s string) (Currency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", ledgererr.Wrapf(ledgererr.ErrCurrencyMismatch, "currency code %q must be exactly 3 letters", s)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", ledgererr.Wrapf(ledgererr.ErrCurrencyMismatch, "currency code %q must be alphabetic", s)
		}
	}
	return Currency(s), nil
}

func (c Currency) String() string { return string(c) }
