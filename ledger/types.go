/*
types.go - Core value types for accounts and the transaction log

PURPOSE:
  Defines the records the Ledger reads and writes: Account (the balance
  holder) and Transaction (one immutable money movement). Every other
  package speaks in these types.

KEY TYPES:
  Account:       Per-customer balances plus cumulative counters
  Transaction:   One row of the append-only log, with running balances
  TxType:        What kind of movement a transaction is
  BalanceField:  Which balance a transaction moves (loan or savings)
  Entry:         A request to record a movement (input to Ledger.Record)

SIGN CONVENTION:
  Type                 Field     Effect
  loan_disbursement    loan      +amount
  penalty              loan      +amount
  loan_payment         loan      -amount
  savings_deposit      savings   +amount
  transfer_in          savings   +amount
  savings_withdrawal   savings   -amount
  transfer_out         savings   -amount
  reversal             (of original)  opposite of the original

  balance_after = balance_before + signed amount, always.

SEE ALSO:
  - ledger.go: The only code that applies this table
  - money.go: Amount validation and rounding
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT
// =============================================================================

// AccountStatus is the lifecycle state of an account. Accounts are never deleted.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountSuspended:
		return true
	}
	return false
}

// Account is the authoritative balance holder for one customer.
// Phone and AccountNumber are each globally unique.
//
// LoanBalance, SavingsBalance and the Total* counters are written only by
// the Ledger. Total* counters never decrease.
type Account struct {
	ID            int64
	AccountNumber string
	Phone         string
	FullName      string
	Email         string
	GroupName     string

	LoanBalance    decimal.Decimal
	SavingsBalance decimal.Decimal
	TotalBorrowed  decimal.Decimal
	TotalRepaid    decimal.Decimal
	TotalSavings   decimal.Decimal

	Status    AccountStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance returns the current value of the given balance field.
func (a *Account) Balance(f BalanceField) decimal.Decimal {
	if f == FieldLoan {
		return a.LoanBalance
	}
	return a.SavingsBalance
}

func (a *Account) setBalance(f BalanceField, v decimal.Decimal) {
	if f == FieldLoan {
		a.LoanBalance = v
		return
	}
	a.SavingsBalance = v
}

// AccountProfile is the non-balance data an upsert may set.
type AccountProfile struct {
	Phone     string
	FullName  string
	Email     string
	GroupName string
	Status    AccountStatus
}

// =============================================================================
// TRANSACTION
// =============================================================================

// TxType identifies the kind of money movement.
type TxType string

const (
	TxLoanDisbursement  TxType = "loan_disbursement"
	TxLoanPayment       TxType = "loan_payment"
	TxSavingsDeposit    TxType = "savings_deposit"
	TxSavingsWithdrawal TxType = "savings_withdrawal"
	TxTransferIn        TxType = "transfer_in"
	TxTransferOut       TxType = "transfer_out"
	TxPenalty           TxType = "penalty"
	TxReversal          TxType = "reversal"
)

// BalanceField names which account balance a transaction moves.
type BalanceField string

const (
	FieldLoan    BalanceField = "loan"
	FieldSavings BalanceField = "savings"
)

// Field returns the balance a type moves. Reversal has no fixed field;
// it inherits the field of the transaction it reverses.
func (t TxType) Field() BalanceField {
	switch t {
	case TxLoanDisbursement, TxLoanPayment, TxPenalty:
		return FieldLoan
	case TxSavingsDeposit, TxSavingsWithdrawal, TxTransferIn, TxTransferOut:
		return FieldSavings
	}
	return ""
}

// Increases reports whether the type adds to its balance field.
func (t TxType) Increases() bool {
	switch t {
	case TxLoanDisbursement, TxPenalty, TxSavingsDeposit, TxTransferIn:
		return true
	}
	return false
}

// Recordable reports whether the type may be passed to Ledger.Record.
// Reversals are produced only by Ledger.Reverse.
func (t TxType) Recordable() bool {
	return t.Field() != ""
}

// TxStatus is the status of a stored transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
	TxReversed  TxStatus = "reversed"
)

// PaymentMethod is how money physically moved.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentCheque, PaymentMobileMoney:
		return true
	}
	return false
}

// Transaction is one immutable row of the ledger.
//
// INVARIANT: BalanceAfter = BalanceBefore + Delta(), where the sign of the
// delta follows the type (see file header). The only field ever changed
// after insert is Status, from completed to reversed, and only together
// with a compensating reversal row.
type Transaction struct {
	ID                int64
	TransactionID     string
	AccountID         int64
	LoanApplicationID *int64
	Type              TxType
	Field             BalanceField
	Amount            decimal.Decimal
	BalanceBefore     decimal.Decimal
	BalanceAfter      decimal.Decimal
	Description       string
	Reference         string
	PaymentMethod     PaymentMethod
	ReversesID        string
	Status            TxStatus
	TransactionDate   time.Time
}

// Delta is the signed change this transaction applied to its balance field.
func (t Transaction) Delta() decimal.Decimal {
	return t.BalanceAfter.Sub(t.BalanceBefore)
}

// Entry is a request to record a single money movement.
type Entry struct {
	// AccountRef is an account number or a phone number.
	AccountRef        string
	Type              TxType
	Amount            decimal.Decimal
	PaymentMethod     PaymentMethod
	Description       string
	Reference         string
	LoanApplicationID *int64
}
