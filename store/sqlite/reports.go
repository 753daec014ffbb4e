package sqlite

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/ledger"
)

// =============================================================================
// REPORTING (ledger.Querier)
// =============================================================================

func (s *Store) ListAccounts(ctx context.Context, search string, offset, limit int) ([]ledger.Account, int, error) {
	c, done := s.read()
	defer done()
	return c.ListAccounts(ctx, search, offset, limit)
}

func (s *Store) SearchTransactions(ctx context.Context, f ledger.TransactionFilter, offset, limit int) ([]ledger.TransactionLine, int, error) {
	c, done := s.read()
	defer done()
	return c.SearchTransactions(ctx, f, offset, limit)
}

func (s *Store) Totals(ctx context.Context) (ledger.Totals, error) {
	c, done := s.read()
	defer done()
	return c.Totals(ctx)
}

func (c *conn) ListAccounts(ctx context.Context, search string, offset, limit int) ([]ledger.Account, int, error) {
	where := `
		WHERE (? = '' OR full_name LIKE ? OR phone LIKE ? OR email LIKE ? OR account_number LIKE ?)`
	pattern := like(search)
	args := []any{search, pattern, pattern, pattern, pattern}

	var total int
	if err := c.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	query, args := page(
		"SELECT "+accountColumns+" FROM accounts"+where+" ORDER BY created_at DESC, id DESC",
		args, offset, limit)
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, total, rows.Err()
}

func (c *conn) SearchTransactions(ctx context.Context, f ledger.TransactionFilter, offset, limit int) ([]ledger.TransactionLine, int, error) {
	where := `
		WHERE (? = '' OR t.type = ?)
		  AND (? = 0 OR t.account_id = ?)
		  AND (? = '' OR t.transaction_id LIKE ? OR t.description LIKE ? OR t.reference LIKE ?
		       OR a.account_number LIKE ? OR a.full_name LIKE ? OR a.phone LIKE ?)`
	pattern := like(f.Search)
	args := []any{
		string(f.Type), string(f.Type),
		f.AccountID, f.AccountID,
		f.Search, pattern, pattern, pattern, pattern, pattern, pattern,
	}
	from := " FROM transactions t JOIN accounts a ON a.id = t.account_id"

	var total int
	if err := c.q.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query, args := page(
		"SELECT "+transactionColumns+", a.account_number, a.full_name, a.phone"+from+where+
			" ORDER BY t.transaction_date DESC, t.id DESC",
		args, offset, limit)
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search transactions: %w", err)
	}
	defer rows.Close()

	var lines []ledger.TransactionLine
	for rows.Next() {
		var line ledger.TransactionLine
		tx, err := scanTransaction(rows, &line.AccountNumber, &line.FullName, &line.Phone)
		if err != nil {
			return nil, 0, err
		}
		line.Transaction = *tx
		lines = append(lines, line)
	}
	return lines, total, rows.Err()
}

// Totals sums balances in Go; SQLite would sum the TEXT columns as floats.
func (c *conn) Totals(ctx context.Context) (ledger.Totals, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT status, loan_balance, savings_balance, total_borrowed, total_repaid
		FROM accounts`)
	if err != nil {
		return ledger.Totals{}, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	t := ledger.Totals{
		LoanOutstanding: decimal.Zero,
		SavingsHeld:     decimal.Zero,
		TotalBorrowed:   decimal.Zero,
		TotalRepaid:     decimal.Zero,
	}
	for rows.Next() {
		var (
			status                          string
			loan, savings, borrowed, repaid decimal.Decimal
		)
		if err := rows.Scan(&status, &loan, &savings, &borrowed, &repaid); err != nil {
			return ledger.Totals{}, fmt.Errorf("failed to scan totals: %w", err)
		}
		t.Accounts++
		if ledger.AccountStatus(status) == ledger.AccountActive {
			t.ActiveAccounts++
		}
		t.LoanOutstanding = t.LoanOutstanding.Add(loan)
		t.SavingsHeld = t.SavingsHeld.Add(savings)
		t.TotalBorrowed = t.TotalBorrowed.Add(borrowed)
		t.TotalRepaid = t.TotalRepaid.Add(repaid)
	}
	return t, rows.Err()
}
