/*
Package application owns loan applications: inbound payload validation,
the typed LoanApplication record and the approval/disbursement workflow.

LIFECYCLE:
  pending ──> approved ──> disbursed ──> completed
     │                         │
     └──> rejected             └──> defaulted

  Only approved -> disbursed moves money: it upserts the customer's
  account and records a loan_disbursement through the Ledger in the same
  unit of work as the status update.

SEE ALSO:
  - validator.go: Field rules
  - workflow.go: State machine
  - repository.go: Persistence boundary and unit of work
*/
package application

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/loancalc"
)

// Status is a loan application's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusDisbursed Status = "disbursed"
	StatusCompleted Status = "completed"
	StatusDefaulted Status = "defaulted"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusDisbursed, StatusCompleted, StatusDefaulted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// LoanApplication is a typed, validated application record.
//
// INVARIANT: TotalPayable = LoanAmount + LoanAmount*InterestRate/100,
// fixed at submission. Schedules are derived from it explicitly, never
// by recomputing it.
type LoanApplication struct {
	ID            int64
	ApplicationID string

	// Applicant
	FullName      string
	Email         string
	Phone         string
	Gender        string
	DateOfBirth   time.Time
	MaritalStatus string
	Religion      string
	Dependents    int
	State         string
	LGA           string
	HomeAddress   string
	OfficeAddress string
	IDCardType    string
	IDCardNumber  string
	Position      string
	GroupName     string

	// Loan
	LoanPurpose    string
	LoanAmount     decimal.Decimal
	InterestRate   decimal.Decimal
	DurationMonths int
	RepaymentRate  loancalc.Frequency
	TotalPayable   decimal.Decimal
	MonthlyPayment decimal.Decimal
	PaymentAmount  decimal.Decimal

	// Bank
	BankName      string
	AccountNumber string
	AccountName   string
	BVN           string

	// Guarantor
	GuarantorName     string
	GuarantorPhone    string
	GuarantorEmail    string
	GuarantorAddress  string
	GuarantorIDType   string
	GuarantorIDNumber string

	Status      Status
	AdminNotes  string
	DisbursedAt time.Time // zero until disbursed
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows application listings.
type Filter struct {
	Status Status
	// Search matches name, phone, email or application ID.
	Search string
}
