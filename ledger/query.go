package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransactionFilter narrows cross-account transaction searches.
type TransactionFilter struct {
	// Search matches transaction ID, description, reference, account
	// number, customer name or phone.
	Search    string
	Type      TxType
	AccountID int64
}

// TransactionLine is a transaction joined with its owner.
type TransactionLine struct {
	Transaction
	AccountNumber string
	FullName      string
	Phone         string
}

// Totals are portfolio-wide sums over all accounts.
type Totals struct {
	Accounts        int
	ActiveAccounts  int
	LoanOutstanding decimal.Decimal
	SavingsHeld     decimal.Decimal
	TotalBorrowed   decimal.Decimal
	TotalRepaid     decimal.Decimal
}

// Querier serves reporting reads. It is read-only and never locks.
type Querier interface {
	// ListAccounts matches name, phone, email or account number; newest first.
	ListAccounts(ctx context.Context, search string, offset, limit int) ([]Account, int, error)

	// SearchTransactions returns matching rows newest first and the total count.
	SearchTransactions(ctx context.Context, f TransactionFilter, offset, limit int) ([]TransactionLine, int, error)

	Totals(ctx context.Context) (Totals, error)
}
