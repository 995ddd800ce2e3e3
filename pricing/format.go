package pricing

import (
	"fmt"

	"unschooling-payment-service/apperrors"
)

var currencySymbols = map[string]string{
	CurrencyINR: "₹",
}

// FormatAmount renders minor units as a major-unit string with exactly two
// decimals. Integer arithmetic only.
func FormatAmount(minor int64) (string, error) {
	if minor < 0 {
		return "", apperrors.ErrInvalidAmount.Wrapf("negative amount %d", minor)
	}
	whole := minor / 100
	frac := minor % 100
	return fmt.Sprintf("%d.%02d", whole, frac), nil
}

// FormatDisplay prefixes FormatAmount with the currency symbol, or the code
// when no symbol is known.
func FormatDisplay(minor int64, currency string) (string, error) {
	s, err := FormatAmount(minor)
	if err != nil {
		return "", err
	}
	if sym, ok := currencySymbols[currency]; ok {
		return sym + s, nil
	}
	return currency + " " + s, nil
}
