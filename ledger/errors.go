/*
errors.go - Error types for the ledger and account store

PURPOSE:
  All ledger error types in one place. Store implementations return the
  sentinels below (ErrAccountNotFound, ErrConflict, ...) so callers can
  match with errors.Is regardless of backend.

ERROR CATEGORIES:
  1. Not found        - account or transaction absent
  2. Business rules   - insufficient funds, invalid amount, overpayment
  3. Conflicts        - unique constraint hit, double reversal
  4. Persistence      - anything the storage layer failed at, including timeouts

PERSISTENCE WRAPPING:
  Raw storage errors are wrapped in *PersistenceError, which unwraps to
  both ErrPersistenceFailure and the underlying cause:

    errors.Is(err, ledger.ErrPersistenceFailure)   // true
    errors.Is(err, context.DeadlineExceeded)       // true if it timed out

SEE ALSO:
  - ledger.go: Produces these errors
  - application/errors.go: Workflow and validation errors
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/idgen"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when no account matches a phone or account number.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when a transaction ID does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInsufficientFunds is returned when a movement would drive a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for non-positive amounts or amounts with more than 2 decimals.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTransactionType is returned for unknown types, or for reversal passed to Record.
	ErrInvalidTransactionType = errors.New("invalid transaction type")

	// ErrInvalidPaymentMethod is returned for payment methods outside the known set.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrOverpayment is returned when a loan payment exceeds the outstanding balance
	// and the overpayment policy is reject.
	ErrOverpayment = errors.New("payment exceeds outstanding loan balance")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyReversed is returned when reversing a transaction twice.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrNotReversible is returned when reversing a reversal row.
	ErrNotReversible = errors.New("transaction cannot be reversed")

	// ErrInvalidAccount is returned for account upserts missing a phone or with an unknown status.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrSameAccount is returned when a transfer names the same account twice.
	ErrSameAccount = errors.New("transfer source and destination are the same account")

	// ErrPersistenceFailure is returned when the storage layer fails.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	AccountNumber string
	Field         BalanceField
	Available     decimal.Decimal
	Requested     decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s %s balance: available %s, requested %s",
		e.AccountNumber, e.Field, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// OverpaymentError provides details about a rejected loan overpayment.
type OverpaymentError struct {
	AccountNumber string
	Outstanding   decimal.Decimal
	Requested     decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding loan balance %s on %s",
		e.Requested.StringFixed(2), e.Outstanding.StringFixed(2), e.AccountNumber)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}

// PersistenceError wraps a storage failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistenceFailure, e.Err}
}

// WrapPersistence wraps err as a PersistenceError unless it is already a
// known domain error. Exported for packages that share ledger store scopes.
func WrapPersistence(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	return IsClientError(err) || IsNotFound(err) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPersistenceFailure) ||
		errors.Is(err, idgen.ErrGenerationExhausted)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTransactionType) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrNotReversible) ||
		errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrInvalidAccount)
}

// IsNotFound returns true if the error indicates a missing account or transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistenceFailure)
}
