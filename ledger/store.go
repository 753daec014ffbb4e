/*
store.go - Persistence interface for accounts and the transaction log

PURPOSE:
  Defines the boundary between the Ledger and the database. The Store
  owns the authoritative balance of every account; the Ledger is the
  only caller allowed to change it.

KEY INTERFACES:
  Store:    Account reads/writes and transaction log append
  TxStore:  Store plus WithTx for atomic multi-statement writes

APPEND-ONLY CONTRACT:
  Transactions are inserted with AppendTransaction. The single permitted
  in-place change is MarkReversed (status completed -> reversed), which
  the Ledger always pairs with a compensating reversal row in the same
  WithTx scope. There is no delete.

UNIQUENESS:
  Implementations MUST enforce uniqueness of accounts.phone,
  accounts.account_number and transactions.transaction_id at the storage
  level and map violations to ErrConflict. The ID generator's exists-check
  is only an optimization on top of that.

ERRORS:
  Missing rows are reported as ErrAccountNotFound / ErrTransactionNotFound.
  Everything else is returned raw; the Ledger wraps it as a PersistenceError.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (database/sql)
  - store/mysql/mysql.go:   MySQL (gorm, row locks)
  - ledger/store/memory.go: In-memory for tests

SEE ALSO:
  - ledger.go: The only writer of balances
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of accounts and transactions.
type Store interface {
	// GetAccountByID returns ErrAccountNotFound when absent.
	GetAccountByID(ctx context.Context, id int64) (*Account, error)

	// GetAccountByPhone returns ErrAccountNotFound when absent.
	GetAccountByPhone(ctx context.Context, phone string) (*Account, error)

	// GetAccountByNumber returns ErrAccountNotFound when absent.
	GetAccountByNumber(ctx context.Context, accountNumber string) (*Account, error)

	// AccountNumberExists backs account number generation.
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)

	// InsertAccount creates an account row and sets acct.ID.
	// Returns ErrConflict if phone or account number is taken.
	InsertAccount(ctx context.Context, acct *Account) error

	// UpdateAccountProfile updates name, email, group and status. Never balances.
	UpdateAccountProfile(ctx context.Context, acct *Account) error

	// UpdateAccountBalances writes both balances and the cumulative counters.
	// Called only by the Ledger.
	UpdateAccountBalances(ctx context.Context, acct *Account) error

	// TransactionIDExists backs transaction ID generation.
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)

	// AppendTransaction inserts a row and sets tx.ID.
	// Returns ErrConflict if the transaction ID is taken.
	AppendTransaction(ctx context.Context, tx *Transaction) error

	// GetTransaction returns ErrTransactionNotFound when absent.
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)

	// MarkReversed flips a completed transaction to reversed.
	// Returns ErrAlreadyReversed if it is not in completed status.
	MarkReversed(ctx context.Context, transactionID string) error

	// ListTransactions returns an account's transactions, newest first.
	// limit <= 0 means no limit.
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
