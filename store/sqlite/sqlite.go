/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One database holds accounts, the transaction log and loan applications,
  so a disbursement can commit the account, the ledger row and the
  application status in a single SQL transaction.

INTERFACES IMPLEMENTED:
  ledger.TxStore:       Accounts and transaction log, WithTx
  ledger.Querier:       Reporting reads
  application.Store:    Applications, WithinTx (unit of work over both)

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements on transactions
  - The only UPDATE on transactions is completed -> reversed (MarkReversed)
  - Corrections via reversal rows only

KEY TABLES:
  accounts:           One row per customer phone, authoritative balances
  transactions:       Immutable ledger rows with balance_before/after
  loan_applications:  Submitted applications and their lifecycle status

UNIQUENESS:
  accounts.phone, accounts.account_number, transactions.transaction_id and
  loan_applications.application_id are UNIQUE. Violations map to
  ledger.ErrConflict. Generated IDs are checked before insert, but the
  constraint is what actually guarantees uniqueness.

MONEY:
  Stored as TEXT with exactly two decimals and read back into
  decimal.Decimal. Never REAL.

CONCURRENCY:
  sync.RWMutex around every call, write lock held for the whole of
  WithTx/WithinTx. File databases are opened with WAL, immediate
  transactions and a busy timeout. ":memory:" uses a single connection
  because every new connection would see an empty database.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store, idgen.New())

SEE ALSO:
  - ../../ledger/store.go: Interface definitions
  - ../mysql: gorm/MySQL implementation of the same interfaces
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ ledger.TxStore    = (*Store)(nil)
	_ ledger.Querier    = (*Store)(nil)
	_ application.Store = (*Store)(nil)
)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already opened handle without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	-- Accounts (one per customer phone)
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_number TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		group_name TEXT NOT NULL DEFAULT '',
		loan_balance TEXT NOT NULL DEFAULT '0.00',
		savings_balance TEXT NOT NULL DEFAULT '0.00',
		total_borrowed TEXT NOT NULL DEFAULT '0.00',
		total_repaid TEXT NOT NULL DEFAULT '0.00',
		total_savings TEXT NOT NULL DEFAULT '0.00',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_created
		ON accounts(created_at DESC);

	-- Loan applications
	CREATE TABLE IF NOT EXISTS loan_applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		application_id TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		gender TEXT NOT NULL,
		date_of_birth TEXT NOT NULL,
		marital_status TEXT NOT NULL,
		religion TEXT NOT NULL DEFAULT '',
		dependents INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		lga TEXT NOT NULL,
		home_address TEXT NOT NULL,
		office_address TEXT NOT NULL DEFAULT '',
		id_card_type TEXT NOT NULL DEFAULT '',
		id_card_number TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		group_name TEXT NOT NULL DEFAULT '',
		loan_purpose TEXT NOT NULL,
		loan_amount TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		duration_months INTEGER NOT NULL,
		repayment_rate TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		monthly_payment TEXT NOT NULL,
		payment_amount TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		account_name TEXT NOT NULL,
		bvn TEXT NOT NULL,
		guarantor_name TEXT NOT NULL,
		guarantor_phone TEXT NOT NULL,
		guarantor_email TEXT NOT NULL DEFAULT '',
		guarantor_address TEXT NOT NULL,
		guarantor_id_type TEXT NOT NULL DEFAULT '',
		guarantor_id_number TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		admin_notes TEXT NOT NULL DEFAULT '',
		disbursed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON loan_applications(status);
	CREATE INDEX IF NOT EXISTS idx_applications_phone
		ON loan_applications(phone);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id TEXT NOT NULL UNIQUE,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		loan_application_id INTEGER REFERENCES loan_applications(id) ON DELETE SET NULL,
		type TEXT NOT NULL,
		field TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT 'cash',
		reverses_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'completed',
		transaction_date TEXT NOT NULL
	);

	-- Account history (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(account_id, transaction_date DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(type);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference) WHERE reference != '';
	`

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.inTx(ctx, func(c *conn) error { return fn(c) })
}

// WithinTx runs fn as one unit of work over accounts, transactions and
// applications.
func (s *Store) WithinTx(ctx context.Context, fn func(application.Repos) error) error {
	return s.inTx(ctx, func(c *conn) error {
		return fn(application.Repos{Ledger: c, Applications: c})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// read returns a conn on the plain handle with the read lock held, and
// the func that releases it.
func (s *Store) read() (*conn, func()) {
	s.mu.RLock()
	return &conn{q: s.db}, s.mu.RUnlock
}

// write is read with the write lock.
func (s *Store) write() (*conn, func()) {
	s.mu.Lock()
	return &conn{q: s.db}, s.mu.Unlock
}

// =============================================================================
// CONN
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries every query. Inside WithTx it wraps the *sql.Tx and takes
// no locks, since the Store already holds the write lock.
type conn struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders fixed-width UTC so text order is time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func like(search string) string {
	return "%" + search + "%"
}

// page appends LIMIT/OFFSET; limit <= 0 means everything.
func page(query string, args []any, offset, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	if offset < 0 {
		offset = 0
	}
	return query + " LIMIT ? OFFSET ?", append(args, limit, offset)
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func exists(ctx context.Context, q querier, query string, arg any) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
