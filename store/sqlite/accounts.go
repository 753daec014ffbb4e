package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/ledger"
)

// =============================================================================
// ACCOUNTS (ledger.Store)
// =============================================================================

const accountColumns = `id, account_number, phone, full_name, email, group_name,
	loan_balance, savings_balance, total_borrowed, total_repaid, total_savings,
	status, created_at, updated_at`

func (s *Store) GetAccountByID(ctx context.Context, id int64) (*ledger.Account, error) {
	c, done := s.read()
	defer done()
	return c.GetAccountByID(ctx, id)
}

func (s *Store) GetAccountByPhone(ctx context.Context, phone string) (*ledger.Account, error) {
	c, done := s.read()
	defer done()
	return c.GetAccountByPhone(ctx, phone)
}

func (s *Store) GetAccountByNumber(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	c, done := s.read()
	defer done()
	return c.GetAccountByNumber(ctx, accountNumber)
}

func (s *Store) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	c, done := s.read()
	defer done()
	return c.AccountNumberExists(ctx, accountNumber)
}

func (s *Store) InsertAccount(ctx context.Context, acct *ledger.Account) error {
	c, done := s.write()
	defer done()
	return c.InsertAccount(ctx, acct)
}

func (s *Store) UpdateAccountProfile(ctx context.Context, acct *ledger.Account) error {
	c, done := s.write()
	defer done()
	return c.UpdateAccountProfile(ctx, acct)
}

func (s *Store) UpdateAccountBalances(ctx context.Context, acct *ledger.Account) error {
	c, done := s.write()
	defer done()
	return c.UpdateAccountBalances(ctx, acct)
}

func (c *conn) GetAccountByID(ctx context.Context, id int64) (*ledger.Account, error) {
	return c.getAccount(ctx, "id = ?", id)
}

func (c *conn) GetAccountByPhone(ctx context.Context, phone string) (*ledger.Account, error) {
	return c.getAccount(ctx, "phone = ?", phone)
}

func (c *conn) GetAccountByNumber(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	return c.getAccount(ctx, "account_number = ?", accountNumber)
}

func (c *conn) getAccount(ctx context.Context, where string, arg any) (*ledger.Account, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE "+where, arg)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	return acct, err
}

func (c *conn) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	return exists(ctx, c.q, "SELECT COUNT(*) FROM accounts WHERE account_number = ?", accountNumber)
}

func (c *conn) InsertAccount(ctx context.Context, acct *ledger.Account) error {
	query := `
		INSERT INTO accounts
		(account_number, phone, full_name, email, group_name,
		 loan_balance, savings_balance, total_borrowed, total_repaid, total_savings,
		 status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := c.q.ExecContext(ctx, query,
		acct.AccountNumber,
		acct.Phone,
		acct.FullName,
		acct.Email,
		acct.GroupName,
		money(acct.LoanBalance),
		money(acct.SavingsBalance),
		money(acct.TotalBorrowed),
		money(acct.TotalRepaid),
		money(acct.TotalSavings),
		string(acct.Status),
		formatTime(acct.CreatedAt),
		formatTime(acct.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: account %s / %s", ledger.ErrConflict, acct.Phone, acct.AccountNumber)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}
	acct.ID = id
	return nil
}

func (c *conn) UpdateAccountProfile(ctx context.Context, acct *ledger.Account) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE accounts
		SET full_name = ?, email = ?, group_name = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		acct.FullName, acct.Email, acct.GroupName, string(acct.Status),
		formatTime(acct.UpdatedAt), acct.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account profile: %w", err)
	}
	return requireRow(res, ledger.ErrAccountNotFound)
}

func (c *conn) UpdateAccountBalances(ctx context.Context, acct *ledger.Account) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE accounts
		SET loan_balance = ?, savings_balance = ?,
		    total_borrowed = ?, total_repaid = ?, total_savings = ?,
		    updated_at = ?
		WHERE id = ?`,
		money(acct.LoanBalance),
		money(acct.SavingsBalance),
		money(acct.TotalBorrowed),
		money(acct.TotalRepaid),
		money(acct.TotalSavings),
		formatTime(acct.UpdatedAt),
		acct.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account balances: %w", err)
	}
	return requireRow(res, ledger.ErrAccountNotFound)
}

func scanAccount(sc scanner) (*ledger.Account, error) {
	var (
		acct      ledger.Account
		status    string
		createdAt string
		updatedAt string
	)

	err := sc.Scan(
		&acct.ID, &acct.AccountNumber, &acct.Phone, &acct.FullName, &acct.Email, &acct.GroupName,
		&acct.LoanBalance, &acct.SavingsBalance, &acct.TotalBorrowed, &acct.TotalRepaid, &acct.TotalSavings,
		&status, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	acct.Status = ledger.AccountStatus(status)
	if acct.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if acct.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &acct, nil
}

// money renders an amount the way it is stored.
func money(d decimal.Decimal) string {
	return d.StringFixed(ledger.MoneyPlaces)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
