package loancalc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Installment is one scheduled payment.
type Installment struct {
	Number  int
	DueDate time.Time
	Payment decimal.Decimal
	// Balance is what remains after this payment.
	Balance decimal.Decimal
}

// Schedule lazily yields the installments of a loan. It is finite and
// single-use: once drained, build a new one with NewSchedule.
//
// The installment count is ceil(TotalPayments). Each installment pays the
// rounded PaymentAmount except the last, which pays exactly what is left.
// Iteration ends early if the balance reaches zero first.
type Schedule struct {
	total     decimal.Decimal
	payment   decimal.Decimal
	remaining decimal.Decimal
	count     int
	next      int
	start     time.Time
	freq      Frequency
}

// NewSchedule builds the schedule for a loan starting at start. The first
// installment falls one period after start.
func NewSchedule(amount, ratePercent decimal.Decimal, durationMonths int, f Frequency, start time.Time) (*Schedule, error) {
	q, err := Calculate(amount, ratePercent, durationMonths, f)
	if err != nil {
		return nil, err
	}
	return ScheduleFor(q.TotalPayable, durationMonths, f, start)
}

// ScheduleFor builds a schedule from an already-fixed total payable, so a
// stored loan is never re-quoted.
func ScheduleFor(totalPayable decimal.Decimal, durationMonths int, f Frequency, start time.Time) (*Schedule, error) {
	if !totalPayable.IsPositive() {
		return nil, fmt.Errorf("%w: total payable must be positive", ErrInvalidInput)
	}
	payment, err := PaymentAmount(totalPayable, durationMonths, f)
	if err != nil {
		return nil, err
	}
	total := totalPayable.Round(2)
	return &Schedule{
		total:     total,
		payment:   payment,
		remaining: total,
		count:     int(TotalPayments(durationMonths, f).Ceil().IntPart()),
		start:     start,
		freq:      f,
	}, nil
}

// Len is the nominal number of installments.
func (s *Schedule) Len() int { return s.count }

// Total is the amount the schedule pays off.
func (s *Schedule) Total() decimal.Decimal { return s.total }

// Next returns the next installment, or false when the schedule is done.
func (s *Schedule) Next() (Installment, bool) {
	if s.next >= s.count || !s.remaining.IsPositive() {
		return Installment{}, false
	}
	s.next++

	pay := s.payment
	if s.next == s.count || pay.GreaterThan(s.remaining) {
		pay = s.remaining
	}
	s.remaining = s.remaining.Sub(pay)

	return Installment{
		Number:  s.next,
		DueDate: DueDate(s.start, s.freq, s.next),
		Payment: pay,
		Balance: s.remaining,
	}, true
}

// Collect drains the remaining installments.
func (s *Schedule) Collect() []Installment {
	var out []Installment
	for {
		inst, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, inst)
	}
}

// DueDate is start advanced by n periods. Monthly steps keep the start day
// of month, clamped to the last day of shorter months (Jan 31 -> Feb 28).
func DueDate(start time.Time, f Frequency, n int) time.Time {
	switch f {
	case Weekly:
		return start.AddDate(0, 0, 7*n)
	case Daily:
		return start.AddDate(0, 0, n)
	}
	y, m, d := start.Date()
	first := time.Date(y, m+time.Month(n), 1, start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
