package loancalc

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency names the major and minor units used in words.
type Currency struct {
	Symbol string
	Major  string
	Minor  string
}

// Naira is the default currency.
var Naira = Currency{Symbol: "₦", Major: "Naira", Minor: "Kobo"}

var (
	ones = [...]string{"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
		"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen"}
	tens   = [...]string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety"}
	scales = [...]string{"", "Thousand", "Million", "Billion", "Trillion", "Quadrillion", "Quintillion",
		"Sextillion", "Septillion", "Octillion", "Nonillion", "Decillion"}
)

// AmountToWords renders an amount for receipts:
//
//	1050.50 -> "One Thousand Fifty Naira and Fifty Kobo Only"
//	0       -> "Zero Naira Only"
//
// The fraction is rounded to 2 places. Negative amounts are prefixed with
// "Minus". Amounts of 10^36 and above are rejected.
func AmountToWords(amount decimal.Decimal, c Currency) (string, error) {
	a := amount.Round(2)
	negative := a.IsNegative()
	a = a.Abs()

	whole := a.Truncate(0)
	minor := int(a.Sub(whole).Mul(hundred).IntPart())

	major, err := integerWords(whole.String())
	if err != nil {
		return "", err
	}
	if major == "" {
		major = "Zero"
	}

	var sb strings.Builder
	if negative {
		sb.WriteString("Minus ")
	}
	sb.WriteString(major)
	sb.WriteString(" " + c.Major)
	if minor > 0 {
		sb.WriteString(" and " + chunkWords(minor) + " " + c.Minor)
	}
	sb.WriteString(" Only")
	return sb.String(), nil
}

// integerWords renders a non-negative decimal digit string, 3 digits at a time.
func integerWords(digits string) (string, error) {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "", nil
	}
	groups := (len(digits) + 2) / 3
	if groups > len(scales) {
		return "", fmt.Errorf("%w: amount has %d digits, too large to spell", ErrInvalidInput, len(digits))
	}

	// Left-pad to a multiple of 3 so every chunk is exactly 3 digits.
	digits = strings.Repeat("0", groups*3-len(digits)) + digits

	parts := make([]string, 0, groups)
	for g := 0; g < groups; g++ {
		chunk := int(digits[g*3]-'0')*100 + int(digits[g*3+1]-'0')*10 + int(digits[g*3+2]-'0')
		if chunk == 0 {
			continue
		}
		w := chunkWords(chunk)
		if scale := scales[groups-1-g]; scale != "" {
			w += " " + scale
		}
		parts = append(parts, w)
	}
	return strings.Join(parts, " "), nil
}

// chunkWords renders 1..999.
func chunkWords(n int) string {
	var parts []string
	if h := n / 100; h > 0 {
		parts = append(parts, ones[h]+" Hundred")
	}
	switch r := n % 100; {
	case r >= 20:
		w := tens[r/10]
		if r%10 > 0 {
			w += "-" + ones[r%10]
		}
		parts = append(parts, w)
	case r > 0:
		parts = append(parts, ones[r])
	}
	return strings.Join(parts, " ")
}
