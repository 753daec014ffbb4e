/*
Package loancalc holds the pure loan arithmetic: totals, installment
amounts, penalties, amortization schedules and amount-in-words.

PURPOSE:
  Every number shown to a customer (quote, schedule, receipt) comes from
  here. Nothing in this package touches storage or time.Now.

FREQUENCY FACTORS:
  Payments per month are fixed constants so schedules reproduce the
  figures customers were originally quoted:
    monthly  1
    weekly   4.33
    daily    30
  Do not replace them with calendar-accurate values.

ROUNDING:
  Inputs and outputs are shopspring/decimal. Installment amounts are
  rounded to 2 places; the final installment of a schedule absorbs the
  rounding residue so the schedule sums to exactly the total payable.

SEE ALSO:
  - schedule.go: Amortization schedule iterator
  - words.go: Amount in words for receipts
*/
package loancalc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for inputs that would make a calculation meaningless
// (zero duration, negative amounts, unknown frequency).
var ErrInvalidInput = errors.New("invalid calculation input")

var hundred = decimal.NewFromInt(100)

// =============================================================================
// FREQUENCY
// =============================================================================

// Frequency is how often installments fall due.
type Frequency string

const (
	Monthly Frequency = "monthly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

// Frequencies lists the accepted repayment frequencies.
var Frequencies = []Frequency{Monthly, Weekly, Daily}

// ParseFrequency accepts a frequency name, case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: repayment frequency %q", ErrInvalidInput, s)
	}
	return f, nil
}

// Valid reports whether f is known.
func (f Frequency) Valid() bool {
	switch f {
	case Monthly, Weekly, Daily:
		return true
	}
	return false
}

// PaymentsPerMonth is the fixed multiplier for this frequency.
func (f Frequency) PaymentsPerMonth() decimal.Decimal {
	switch f {
	case Weekly:
		return decimal.RequireFromString("4.33")
	case Daily:
		return decimal.NewFromInt(30)
	}
	return decimal.NewFromInt(1)
}

// =============================================================================
// TOTALS
// =============================================================================

// TotalPayable is amount + amount*ratePercent/100.
func TotalPayable(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Add(amount.Mul(ratePercent).Div(hundred))
}

// TotalPayments is durationMonths scaled by the frequency factor. It may be
// fractional (12 months weekly = 51.96).
func TotalPayments(durationMonths int, f Frequency) decimal.Decimal {
	return decimal.NewFromInt(int64(durationMonths)).Mul(f.PaymentsPerMonth())
}

// PaymentAmount is totalPayable / TotalPayments, rounded to 2 places.
func PaymentAmount(totalPayable decimal.Decimal, durationMonths int, f Frequency) (decimal.Decimal, error) {
	if !f.Valid() {
		return decimal.Zero, fmt.Errorf("%w: repayment frequency %q", ErrInvalidInput, f)
	}
	if durationMonths <= 0 {
		return decimal.Zero, fmt.Errorf("%w: duration must be at least one month, got %d", ErrInvalidInput, durationMonths)
	}
	payments := TotalPayments(durationMonths, f)
	if payments.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero payments", ErrInvalidInput)
	}
	return totalPayable.Div(payments).Round(2), nil
}

// Quote is a full loan calculation.
type Quote struct {
	Principal      decimal.Decimal
	RatePercent    decimal.Decimal
	DurationMonths int
	Frequency      Frequency
	TotalPayable   decimal.Decimal
	TotalInterest  decimal.Decimal
	MonthlyPayment decimal.Decimal
	PaymentAmount  decimal.Decimal
	TotalPayments  decimal.Decimal
	// Installments is the whole number of installments a schedule will have.
	Installments int
}

// Calculate produces a quote. Totals are rounded to 2 places.
func Calculate(amount, ratePercent decimal.Decimal, durationMonths int, f Frequency) (Quote, error) {
	if !amount.IsPositive() {
		return Quote{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if ratePercent.IsNegative() {
		return Quote{}, fmt.Errorf("%w: interest rate cannot be negative", ErrInvalidInput)
	}
	total := TotalPayable(amount, ratePercent).Round(2)
	payment, err := PaymentAmount(total, durationMonths, f)
	if err != nil {
		return Quote{}, err
	}
	payments := TotalPayments(durationMonths, f)
	return Quote{
		Principal:      amount,
		RatePercent:    ratePercent,
		DurationMonths: durationMonths,
		Frequency:      f,
		TotalPayable:   total,
		TotalInterest:  total.Sub(amount),
		MonthlyPayment: total.Div(decimal.NewFromInt(int64(durationMonths))).Round(2),
		PaymentAmount:  payment,
		TotalPayments:  payments,
		Installments:   int(payments.Ceil().IntPart()),
	}, nil
}

// =============================================================================
// PENALTY
// =============================================================================

// Penalty is a monthly rate applied pro rata per day past the grace period:
//
//	outstanding * ratePercent/100/30 * (daysOverdue - graceDays)
//
// Zero when daysOverdue <= graceDays. Not rounded.
func Penalty(outstanding decimal.Decimal, daysOverdue int, ratePercent decimal.Decimal, graceDays int) decimal.Decimal {
	if daysOverdue <= graceDays {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(daysOverdue - graceDays))
	return outstanding.Mul(ratePercent).Mul(days).Div(decimal.NewFromInt(3000))
}

// =============================================================================
// MISC
// =============================================================================

// CompoundInterest returns the interest earned (not the final amount) on
// principal at ratePercent a year over years, compounded compoundsPerYear times.
func CompoundInterest(principal, ratePercent decimal.Decimal, years, compoundsPerYear int) (decimal.Decimal, error) {
	if compoundsPerYear <= 0 || years < 0 {
		return decimal.Zero, fmt.Errorf("%w: compounding periods", ErrInvalidInput)
	}
	perPeriod := ratePercent.Div(hundred).Div(decimal.NewFromInt(int64(compoundsPerYear)))
	factor := decimal.NewFromInt(1).Add(perPeriod).Pow(decimal.NewFromInt(int64(years * compoundsPerYear)))
	return principal.Mul(factor).Sub(principal).Round(2), nil
}

// FormatCurrency renders an amount as symbol + thousands-grouped, 2-place value.
func FormatCurrency(amount decimal.Decimal, symbol string) string {
	s := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var sb strings.Builder
	if amount.IsNegative() {
		sb.WriteByte('-')
	}
	sb.WriteString(symbol)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('.')
	sb.WriteString(frac)
	return sb.String()
}
