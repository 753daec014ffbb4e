package loancalc_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/loancalc"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// TOTALS
// =============================================================================

func TestTotalPayable(t *testing.T) {
	cases := []struct{ amount, rate, want string }{
		{"100000", "10", "110000"},
		{"50000", "0", "50000"},
		{"12345.67", "7.5", "13271.595250"},
		{"10000", "100", "20000"},
	}
	for _, c := range cases {
		got := loancalc.TotalPayable(d(c.amount), d(c.rate))
		assert.True(t, got.Equal(d(c.want)), "%s @ %s%%: got %s", c.amount, c.rate, got)
		assert.True(t, got.GreaterThanOrEqual(d(c.amount)))
	}
}

func TestPaymentAmount_Frequencies(t *testing.T) {
	total := d("110000")

	monthly, err := loancalc.PaymentAmount(total, 12, loancalc.Monthly)
	require.NoError(t, err)
	assert.Equal(t, "9166.67", monthly.StringFixed(2))

	weekly, err := loancalc.PaymentAmount(total, 12, loancalc.Weekly)
	require.NoError(t, err)
	// 110000 / (12 * 4.33) = 110000 / 51.96
	assert.Equal(t, "2117.01", weekly.StringFixed(2))

	daily, err := loancalc.PaymentAmount(total, 12, loancalc.Daily)
	require.NoError(t, err)
	assert.Equal(t, "305.56", daily.StringFixed(2))
}

func TestPaymentAmount_ZeroDuration_IsError(t *testing.T) {
	_, err := loancalc.PaymentAmount(d("1000"), 0, loancalc.Monthly)
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)

	_, err = loancalc.PaymentAmount(d("1000"), -3, loancalc.Weekly)
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)

	_, err = loancalc.PaymentAmount(d("1000"), 3, loancalc.Frequency("yearly"))
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)
}

func TestCalculate_Quote(t *testing.T) {
	q, err := loancalc.Calculate(d("100000"), d("10"), 6, loancalc.Weekly)
	require.NoError(t, err)

	assert.Equal(t, "110000.00", q.TotalPayable.StringFixed(2))
	assert.Equal(t, "10000.00", q.TotalInterest.StringFixed(2))
	assert.Equal(t, "18333.33", q.MonthlyPayment.StringFixed(2))
	assert.True(t, q.TotalPayments.Equal(d("25.98")))
	assert.Equal(t, 26, q.Installments)
}

func TestCalculate_RejectsBadInput(t *testing.T) {
	_, err := loancalc.Calculate(d("0"), d("10"), 6, loancalc.Monthly)
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)

	_, err = loancalc.Calculate(d("1000"), d("-1"), 6, loancalc.Monthly)
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)
}

func TestParseFrequency(t *testing.T) {
	f, err := loancalc.ParseFrequency(" Weekly ")
	require.NoError(t, err)
	assert.Equal(t, loancalc.Weekly, f)

	_, err = loancalc.ParseFrequency("fortnightly")
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)
}

// =============================================================================
// PENALTY
// =============================================================================

func TestPenalty_ZeroWithinGrace(t *testing.T) {
	for days := -1; days <= 7; days++ {
		p := loancalc.Penalty(d("50000"), days, d("5"), 7)
		assert.True(t, p.IsZero(), "day %d", days)
	}
}

func TestPenalty_StrictlyIncreasingAfterGrace(t *testing.T) {
	prev := decimal.Zero
	for days := 8; days <= 120; days++ {
		p := loancalc.Penalty(d("50000"), days, d("5"), 7)
		assert.True(t, p.GreaterThan(prev), "day %d: %s <= %s", days, p, prev)
		prev = p
	}
}

func TestPenalty_Formula(t *testing.T) {
	// 30000 * 5/100/30 * (17 - 7) = 500
	p := loancalc.Penalty(d("30000"), 17, d("5"), 7)
	assert.True(t, p.Equal(d("500")), "got %s", p)
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestSchedule_SumsToTotalAndEndsAtZero(t *testing.T) {
	start := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

	for _, f := range loancalc.Frequencies {
		for _, months := range []int{1, 3, 7, 12, 24} {
			for _, amount := range []string{"10000", "123456.78", "999999.99"} {
				s, err := loancalc.NewSchedule(d(amount), d("13.5"), months, f, start)
				require.NoError(t, err)

				total := s.Total()
				items := s.Collect()
				require.NotEmpty(t, items)

				sum := decimal.Zero
				for _, it := range items {
					assert.False(t, it.Payment.IsNegative())
					assert.False(t, it.Balance.IsNegative())
					sum = sum.Add(it.Payment)
				}
				assert.True(t, sum.Equal(total), "%s %d %s: sum %s != total %s", f, months, amount, sum, total)
				assert.True(t, items[len(items)-1].Balance.IsZero())
				assert.LessOrEqual(t, len(items), s.Len())
			}
		}
	}
}

func TestSchedule_Weekly_FinalInstallmentAbsorbsResidue(t *testing.T) {
	// 12 months weekly is 51.96 payments: 51 full installments then a short one.
	s, err := loancalc.NewSchedule(d("100000"), d("10"), 12, loancalc.Weekly, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 52, s.Len())

	items := s.Collect()
	require.Len(t, items, 52)
	assert.True(t, items[0].Payment.Equal(d("2117.01")))
	last := items[51]
	assert.True(t, last.Payment.LessThan(items[0].Payment))
	assert.True(t, last.Balance.IsZero())
}

func TestSchedule_IsSingleUse(t *testing.T) {
	s, err := loancalc.NewSchedule(d("1000"), d("0"), 2, loancalc.Monthly, time.Now())
	require.NoError(t, err)

	assert.Len(t, s.Collect(), 2)
	_, ok := s.Next()
	assert.False(t, ok)
	assert.Empty(t, s.Collect())
}

func TestSchedule_DueDates(t *testing.T) {
	jan31 := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)

	s, err := loancalc.NewSchedule(d("3000"), d("0"), 3, loancalc.Monthly, jan31)
	require.NoError(t, err)
	items := s.Collect()
	require.Len(t, items, 3)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), items[0].DueDate)
	assert.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), items[1].DueDate)
	assert.Equal(t, time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC), items[2].DueDate)

	assert.Equal(t, jan31.AddDate(0, 0, 14), loancalc.DueDate(jan31, loancalc.Weekly, 2))
	assert.Equal(t, jan31.AddDate(0, 0, 3), loancalc.DueDate(jan31, loancalc.Daily, 3))
}

func TestScheduleFor_RejectsZeroDuration(t *testing.T) {
	_, err := loancalc.ScheduleFor(d("1000"), 0, loancalc.Monthly, time.Now())
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)
}

// =============================================================================
// MISC
// =============================================================================

func TestCompoundInterest(t *testing.T) {
	// 1000 at 10% yearly for 2 years: 1000*1.1^2 - 1000 = 210
	got, err := loancalc.CompoundInterest(d("1000"), d("10"), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "210.00", got.StringFixed(2))

	_, err = loancalc.CompoundInterest(d("1000"), d("10"), 2, 0)
	assert.ErrorIs(t, err, loancalc.ErrInvalidInput)
}

func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "₦1,234,567.50", loancalc.FormatCurrency(d("1234567.5"), "₦"))
	assert.Equal(t, "₦0.00", loancalc.FormatCurrency(d("0"), "₦"))
	assert.Equal(t, "-₦999.99", loancalc.FormatCurrency(d("-999.99"), "₦"))
	assert.Equal(t, "$100.00", loancalc.FormatCurrency(d("100"), "$"))
}
