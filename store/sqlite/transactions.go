package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/loan-ledger/ledger"
)

// =============================================================================
// TRANSACTION LOG (ledger.Store)
// =============================================================================

const transactionColumns = `t.id, t.transaction_id, t.account_id, t.loan_application_id,
	t.type, t.field, t.amount, t.balance_before, t.balance_after,
	t.description, t.reference, t.payment_method, t.reverses_id, t.status, t.transaction_date`

func (s *Store) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	c, done := s.read()
	defer done()
	return c.TransactionIDExists(ctx, transactionID)
}

func (s *Store) AppendTransaction(ctx context.Context, tx *ledger.Transaction) error {
	c, done := s.write()
	defer done()
	return c.AppendTransaction(ctx, tx)
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*ledger.Transaction, error) {
	c, done := s.read()
	defer done()
	return c.GetTransaction(ctx, transactionID)
}

func (s *Store) MarkReversed(ctx context.Context, transactionID string) error {
	c, done := s.write()
	defer done()
	return c.MarkReversed(ctx, transactionID)
}

func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	c, done := s.read()
	defer done()
	return c.ListTransactions(ctx, accountID, limit)
}

func (c *conn) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	return exists(ctx, c.q, "SELECT COUNT(*) FROM transactions WHERE transaction_id = ?", transactionID)
}

// AppendTransaction inserts a ledger row. There is no matching update or
// delete apart from MarkReversed.
func (c *conn) AppendTransaction(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(transaction_id, account_id, loan_application_id, type, field,
		 amount, balance_before, balance_after, description, reference,
		 payment_method, reverses_id, status, transaction_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := c.q.ExecContext(ctx, query,
		tx.TransactionID,
		tx.AccountID,
		nullInt64(tx.LoanApplicationID),
		string(tx.Type),
		string(tx.Field),
		money(tx.Amount),
		money(tx.BalanceBefore),
		money(tx.BalanceAfter),
		tx.Description,
		tx.Reference,
		string(tx.PaymentMethod),
		tx.ReversesID,
		string(tx.Status),
		formatTime(tx.TransactionDate),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: transaction %s", ledger.ErrConflict, tx.TransactionID)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read transaction id: %w", err)
	}
	tx.ID = id
	return nil
}

func (c *conn) GetTransaction(ctx context.Context, transactionID string) (*ledger.Transaction, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions t WHERE t.transaction_id = ?",
		transactionID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrTransactionNotFound
	}
	return tx, err
}

func (c *conn) MarkReversed(ctx context.Context, transactionID string) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE transactions SET status = ? WHERE transaction_id = ? AND status = ?",
		string(ledger.TxReversed), transactionID, string(ledger.TxCompleted))
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	found, err := c.TransactionIDExists(ctx, transactionID)
	if err != nil {
		return err
	}
	if !found {
		return ledger.ErrTransactionNotFound
	}
	return fmt.Errorf("%w: %s", ledger.ErrAlreadyReversed, transactionID)
}

func (c *conn) ListTransactions(ctx context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	query, args := page(`
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE t.account_id = ?
		ORDER BY t.transaction_date DESC, t.id DESC`,
		[]any{accountID}, 0, limit)

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanTransaction(sc scanner, extra ...any) (*ledger.Transaction, error) {
	var (
		tx              ledger.Transaction
		loanAppID       sql.NullInt64
		txType          string
		field           string
		paymentMethod   string
		status          string
		transactionDate string
	)

	dest := []any{
		&tx.ID, &tx.TransactionID, &tx.AccountID, &loanAppID,
		&txType, &field, &tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter,
		&tx.Description, &tx.Reference, &paymentMethod, &tx.ReversesID, &status, &transactionDate,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if loanAppID.Valid {
		id := loanAppID.Int64
		tx.LoanApplicationID = &id
	}
	tx.Type = ledger.TxType(txType)
	tx.Field = ledger.BalanceField(field)
	tx.PaymentMethod = ledger.PaymentMethod(paymentMethod)
	tx.Status = ledger.TxStatus(status)

	var err error
	if tx.TransactionDate, err = parseTime(transactionDate); err != nil {
		return nil, err
	}
	return &tx, nil
}
