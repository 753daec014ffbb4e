package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every stored amount carries.
const MoneyPlaces = 2

// ValidateAmount rejects amounts that are not strictly positive or that
// carry more precision than the store keeps.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, amount.String())
	}
	if !amount.Equal(amount.Round(MoneyPlaces)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount.String(), MoneyPlaces)
	}
	return nil
}

// ParseAmount parses a monetary string at an input boundary. Commas used
// as thousands separators are accepted; anything else non-numeric is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	return d, nil
}

// Money rounds to storage precision.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
