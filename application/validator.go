/*
validator.go - Field rules for inbound loan applications

PURPOSE:
  Turns a raw Payload into either a typed LoanApplication or a complete
  ValidationErrors map. Every rule runs; nothing short-circuits, so a
  form can show all problems at once.

RULES:
  full_name          required, >= 3 chars
  email              required, well-formed
  phone              required; after stripping non-digits one of:
                       11 digits starting 0      (08031234567)
                       13 digits starting 234    (2348031234567)
                       10 digits starting 7/8/9  (8031234567)
  gender             male | female
  date_of_birth      YYYY-MM-DD, age >= MinAge
  marital_status     single | married | divorced | widowed
  state, lga         required
  home_address       required, >= 10 chars
  loan_purpose       required, >= 10 chars
  loan_amount        number > 0, 2 decimals max, within [MinLoanAmount, MaxLoanAmount]
  interest_rate      number >= 0; blank uses DefaultInterestRate
  duration_months    whole number > 0, within [MinDuration, MaxDuration]
  repayment_rate     monthly | weekly | daily
  bank_name          required
  account_number     exactly 10 digits
  account_name       required, >= 3 chars
  bvn                exactly 11 digits
  guarantor_name     required, >= 3 chars
  guarantor_phone    same shape as phone
  guarantor_email    optional, well-formed when present
  guarantor_address  required, >= 10 chars
  dependents         optional whole number >= 0

NUMBERS:
  Numeric fields are parsed explicitly. "abc" for loan_amount is a field
  error, never zero.
*/
package application

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

// Rules are the configurable bounds the validator enforces.
type Rules struct {
	MinLoanAmount       decimal.Decimal
	MaxLoanAmount       decimal.Decimal
	MinDuration         int
	MaxDuration         int
	DefaultInterestRate decimal.Decimal
	MinAge              int
	CurrencySymbol      string
}

// DefaultRules mirror the stock lending settings.
func DefaultRules() Rules {
	return Rules{
		MinLoanAmount:       decimal.NewFromInt(10000),
		MaxLoanAmount:       decimal.NewFromInt(1000000),
		MinDuration:         1,
		MaxDuration:         24,
		DefaultInterestRate: decimal.NewFromInt(10),
		MinAge:              18,
		CurrencySymbol:      loancalc.Naira.Symbol,
	}
}

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	tenDigits     = regexp.MustCompile(`^\d{10}$`)
	elevenDigits  = regexp.MustCompile(`^\d{11}$`)
	genders       = []string{"male", "female"}
	maritalStates = []string{"single", "married", "divorced", "widowed"}
)

// Validator checks payloads against Rules.
type Validator struct {
	rules Rules
}

func NewValidator(r Rules) *Validator {
	return &Validator{rules: r}
}

// Rules returns the bounds in force.
func (v *Validator) Rules() Rules {
	return v.rules
}

// Validate returns every violation in p. An empty map means valid.
func (v *Validator) Validate(p Payload, now time.Time) ValidationErrors {
	_, errs := v.check(p, now)
	return errs
}

// Build validates p and, if valid, returns a pending application with its
// derived totals fixed. The application ID is assigned on submission.
func (v *Validator) Build(p Payload, now time.Time) (*LoanApplication, error) {
	app, errs := v.check(p, now)
	if len(errs) > 0 {
		return nil, errs
	}
	return app, nil
}

func (v *Validator) check(p Payload, now time.Time) (*LoanApplication, ValidationErrors) {
	errs := ValidationErrors{}
	app := &LoanApplication{Status: StatusPending, CreatedAt: now, UpdatedAt: now}

	// Applicant
	app.FullName = minLen(errs, "full_name", p.FullName, 3, "Full name is required and must be at least 3 characters.")
	app.Email = email(errs, "email", p.Email, true, "Valid email address is required.")
	app.Phone = phone(errs, "phone", p.Phone, "Valid phone number is required.")
	app.Gender = oneOf(errs, "gender", p.Gender, genders, "Gender is required.")
	app.MaritalStatus = oneOf(errs, "marital_status", p.MaritalStatus, maritalStates, "Marital status is required.")
	app.DateOfBirth = v.dateOfBirth(errs, p.DateOfBirth, now)
	app.State = required(errs, "state", p.State, "State is required.")
	app.LGA = required(errs, "lga", p.LGA, "Local Government Area is required.")
	app.HomeAddress = minLen(errs, "home_address", p.HomeAddress, 10, "Home address is required and must be at least 10 characters.")
	app.Religion = p.Religion.String()
	app.OfficeAddress = p.OfficeAddress.String()
	app.IDCardType = p.IDCardType.String()
	app.IDCardNumber = p.IDCardNumber.String()
	app.Position = p.Position.String()
	app.GroupName = p.GroupName.String()
	if s := p.Dependents.String(); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			errs.add("dependents", "Number of dependents must be a whole number.")
		}
		app.Dependents = n
	}

	// Loan
	app.LoanPurpose = minLen(errs, "loan_purpose", p.LoanPurpose, 10, "Loan purpose is required and must be at least 10 characters.")
	app.LoanAmount = v.loanAmount(errs, p.LoanAmount)
	app.InterestRate = v.interestRate(errs, p.InterestRate)
	app.DurationMonths = v.duration(errs, p.DurationMonths)
	freq, err := loancalc.ParseFrequency(p.RepaymentRate.String())
	if err != nil {
		errs.add("repayment_rate", "Repayment rate is required.")
	}
	app.RepaymentRate = freq

	// Bank
	app.BankName = required(errs, "bank_name", p.BankName, "Bank name is required.")
	app.AccountNumber = pattern(errs, "account_number", p.AccountNumber, tenDigits, "Valid account number is required.")
	app.AccountName = minLen(errs, "account_name", p.AccountName, 3, "Account name is required.")
	app.BVN = pattern(errs, "bvn", p.BVN, elevenDigits, "Valid 11-digit BVN is required.")

	// Guarantor
	app.GuarantorName = minLen(errs, "guarantor_name", p.GuarantorName, 3, "Guarantor name is required.")
	app.GuarantorPhone = phone(errs, "guarantor_phone", p.GuarantorPhone, "Valid guarantor phone number is required.")
	app.GuarantorEmail = email(errs, "guarantor_email", p.GuarantorEmail, false, "Valid guarantor email is required if provided.")
	app.GuarantorAddress = minLen(errs, "guarantor_address", p.GuarantorAddress, 10, "Guarantor address is required.")
	app.GuarantorIDType = p.GuarantorIDType.String()
	app.GuarantorIDNumber = p.GuarantorIDNumber.String()

	if len(errs) > 0 {
		return nil, errs
	}

	q, err := loancalc.Calculate(app.LoanAmount, app.InterestRate, app.DurationMonths, app.RepaymentRate)
	if err != nil {
		errs.add("loan_amount", err.Error())
		return nil, errs
	}
	app.TotalPayable = q.TotalPayable
	app.MonthlyPayment = q.MonthlyPayment
	app.PaymentAmount = q.PaymentAmount
	return app, errs
}

// =============================================================================
// FIELD RULES
// =============================================================================

func required(errs ValidationErrors, field string, t Text, msg string) string {
	s := t.String()
	if s == "" {
		errs.add(field, msg)
	}
	return s
}

func minLen(errs ValidationErrors, field string, t Text, n int, msg string) string {
	s := t.String()
	if utf8.RuneCountInString(s) < n {
		errs.add(field, msg)
	}
	return s
}

func oneOf(errs ValidationErrors, field string, t Text, allowed []string, msg string) string {
	s := strings.ToLower(t.String())
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	errs.add(field, msg)
	return s
}

func pattern(errs ValidationErrors, field string, t Text, re *regexp.Regexp, msg string) string {
	s := t.String()
	if !re.MatchString(s) {
		errs.add(field, msg)
	}
	return s
}

func email(errs ValidationErrors, field string, t Text, mandatory bool, msg string) string {
	s := t.String()
	if s == "" && !mandatory {
		return s
	}
	if !emailPattern.MatchString(s) {
		errs.add(field, msg)
	}
	return s
}

func phone(errs ValidationErrors, field string, t Text, msg string) string {
	digits := ledger.NormalizePhone(t.String())
	if !ValidPhone(digits) {
		errs.add(field, msg)
	}
	return digits
}

// ValidPhone reports whether a digits-only number has an accepted shape.
func ValidPhone(digits string) bool {
	switch {
	case len(digits) == 11 && digits[0] == '0':
		return true
	case len(digits) == 13 && strings.HasPrefix(digits, "234"):
		return true
	case len(digits) == 10 && strings.ContainsRune("789", rune(digits[0])):
		return true
	}
	return false
}

func (v *Validator) dateOfBirth(errs ValidationErrors, t Text, now time.Time) time.Time {
	dob, err := time.Parse("2006-01-02", t.String())
	if err != nil {
		errs.add("date_of_birth", "Valid date of birth is required.")
		return time.Time{}
	}
	if ageOn(dob, now) < v.rules.MinAge {
		errs.add("date_of_birth", fmt.Sprintf("Applicant must be at least %d years old.", v.rules.MinAge))
	}
	return dob
}

func ageOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

func (v *Validator) loanAmount(errs ValidationErrors, t Text) decimal.Decimal {
	amount, err := ledger.ParseAmount(t.String())
	if err != nil || !amount.IsPositive() {
		errs.add("loan_amount", "Valid loan amount is required.")
		return decimal.Zero
	}
	if !amount.Equal(ledger.Money(amount)) {
		errs.add("loan_amount", "Loan amount cannot have more than 2 decimal places.")
		return amount
	}
	if amount.LessThan(v.rules.MinLoanAmount) {
		errs.add("loan_amount", "Minimum loan amount is "+loancalc.FormatCurrency(v.rules.MinLoanAmount, v.rules.CurrencySymbol))
	}
	if amount.GreaterThan(v.rules.MaxLoanAmount) {
		errs.add("loan_amount", "Maximum loan amount is "+loancalc.FormatCurrency(v.rules.MaxLoanAmount, v.rules.CurrencySymbol))
	}
	return amount
}

func (v *Validator) interestRate(errs ValidationErrors, t Text) decimal.Decimal {
	if t.String() == "" {
		return v.rules.DefaultInterestRate
	}
	rate, err := ledger.ParseAmount(t.String())
	if err != nil || rate.IsNegative() {
		errs.add("interest_rate", "Valid interest rate is required.")
		return decimal.Zero
	}
	return rate
}

func (v *Validator) duration(errs ValidationErrors, t Text) int {
	n, err := strconv.Atoi(t.String())
	if err != nil || n <= 0 {
		errs.add("duration_months", "Valid loan duration is required.")
		return 0
	}
	if n < v.rules.MinDuration {
		errs.add("duration_months", fmt.Sprintf("Minimum loan duration is %d month(s)", v.rules.MinDuration))
	}
	if n > v.rules.MaxDuration {
		errs.add("duration_months", fmt.Sprintf("Maximum loan duration is %d months", v.rules.MaxDuration))
	}
	return n
}
