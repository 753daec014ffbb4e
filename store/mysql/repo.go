package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
	"gorm.io/gorm"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

func (r *repo) GetAccountByID(ctx context.Context, id int64) (*ledger.Account, error) {
	return r.getAccount(ctx, "id = ?", id)
}

func (r *repo) GetAccountByPhone(ctx context.Context, phone string) (*ledger.Account, error) {
	return r.getAccount(ctx, "phone = ?", phone)
}

func (r *repo) GetAccountByNumber(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	return r.getAccount(ctx, "account_number = ?", accountNumber)
}

func (r *repo) getAccount(ctx context.Context, where string, arg any) (*ledger.Account, error) {
	var m accountModel
	if err := r.forUpdate(ctx).Where(where, arg).First(&m).Error; err != nil {
		return nil, notFound(err, ledger.ErrAccountNotFound)
	}
	acct := m.toDomain()
	return &acct, nil
}

func (r *repo) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	return r.exists(ctx, &accountModel{}, "account_number", accountNumber)
}

func (r *repo) InsertAccount(ctx context.Context, acct *ledger.Account) error {
	m := fromAccount(acct)
	if err := r.q(ctx).Create(&m).Error; err != nil {
		return conflict(err, "account "+acct.Phone)
	}
	acct.ID = m.ID
	return nil
}

func (r *repo) UpdateAccountProfile(ctx context.Context, acct *ledger.Account) error {
	res := r.q(ctx).Model(&accountModel{}).Where("id = ?", acct.ID).Updates(map[string]any{
		"full_name":  acct.FullName,
		"email":      acct.Email,
		"group_name": acct.GroupName,
		"status":     string(acct.Status),
		"updated_at": acct.UpdatedAt,
	})
	return r.touched(ctx, res, &accountModel{}, "id", acct.ID, ledger.ErrAccountNotFound)
}

func (r *repo) UpdateAccountBalances(ctx context.Context, acct *ledger.Account) error {
	res := r.q(ctx).Model(&accountModel{}).Where("id = ?", acct.ID).Updates(map[string]any{
		"loan_balance":    acct.LoanBalance,
		"savings_balance": acct.SavingsBalance,
		"total_borrowed":  acct.TotalBorrowed,
		"total_repaid":    acct.TotalRepaid,
		"total_savings":   acct.TotalSavings,
		"updated_at":      acct.UpdatedAt,
	})
	return r.touched(ctx, res, &accountModel{}, "id", acct.ID, ledger.ErrAccountNotFound)
}

// touched turns zero affected rows into notFound when the row is really
// missing. MySQL reports only changed rows, so an update that writes
// identical values also affects zero.
func (r *repo) touched(ctx context.Context, res *gorm.DB, model any, column string, value any, missing error) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := r.q(ctx).Model(model).Where(column+" = ?", value).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

func (r *repo) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	return r.exists(ctx, &transactionModel{}, "transaction_id", transactionID)
}

func (r *repo) AppendTransaction(ctx context.Context, tx *ledger.Transaction) error {
	m := fromTransaction(tx)
	if err := r.q(ctx).Create(&m).Error; err != nil {
		return conflict(err, "transaction "+tx.TransactionID)
	}
	tx.ID = m.ID
	return nil
}

func (r *repo) GetTransaction(ctx context.Context, transactionID string) (*ledger.Transaction, error) {
	var m transactionModel
	if err := r.forUpdate(ctx).Where("transaction_id = ?", transactionID).First(&m).Error; err != nil {
		return nil, notFound(err, ledger.ErrTransactionNotFound)
	}
	tx := m.toDomain()
	return &tx, nil
}

func (r *repo) MarkReversed(ctx context.Context, transactionID string) error {
	res := r.q(ctx).Model(&transactionModel{}).
		Where("transaction_id = ? AND status = ?", transactionID, string(ledger.TxCompleted)).
		Update("status", string(ledger.TxReversed))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	found, err := r.TransactionIDExists(ctx, transactionID)
	if err != nil {
		return err
	}
	if !found {
		return ledger.ErrTransactionNotFound
	}
	return fmt.Errorf("%w: %s", ledger.ErrAlreadyReversed, transactionID)
}

func (r *repo) ListTransactions(ctx context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	var rows []transactionModel
	q := r.q(ctx).Where("account_id = ?", accountID).Order("transaction_date DESC, id DESC")
	if err := page(q, 0, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Transaction, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

// =============================================================================
// LOAN APPLICATIONS
// =============================================================================

func (r *repo) ApplicationIDExists(ctx context.Context, applicationID string) (bool, error) {
	return r.exists(ctx, &applicationModel{}, "application_id", applicationID)
}

func (r *repo) InsertApplication(ctx context.Context, app *application.LoanApplication) error {
	m := fromApplication(app)
	if err := r.q(ctx).Create(&m).Error; err != nil {
		return conflict(err, "application "+app.ApplicationID)
	}
	app.ID = m.ID
	return nil
}

func (r *repo) GetApplication(ctx context.Context, applicationID string) (*application.LoanApplication, error) {
	var m applicationModel
	if err := r.forUpdate(ctx).Where("application_id = ?", applicationID).First(&m).Error; err != nil {
		return nil, notFound(err, application.ErrApplicationNotFound)
	}
	app := m.toDomain()
	return &app, nil
}

func (r *repo) UpdateApplicationStatus(ctx context.Context, applicationID string, from, to application.Status, notes string, at time.Time) error {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": at,
	}
	if notes != "" {
		updates["admin_notes"] = notes
	}
	if to == application.StatusDisbursed {
		updates["disbursed_at"] = at
	}

	res := r.q(ctx).Model(&applicationModel{}).
		Where("application_id = ? AND status = ?", applicationID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	found, err := r.ApplicationIDExists(ctx, applicationID)
	if err != nil {
		return err
	}
	if !found {
		return application.ErrApplicationNotFound
	}
	return fmt.Errorf("%w: application %s is no longer %s", ledger.ErrConflict, applicationID, from)
}

func (r *repo) ListApplications(ctx context.Context, f application.Filter, offset, limit int) ([]application.LoanApplication, int, error) {
	q := r.q(ctx).Model(&applicationModel{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Search != "" {
		p := like(f.Search)
		q = q.Where("(full_name LIKE ? OR phone LIKE ? OR email LIKE ? OR application_id LIKE ?)", p, p, p, p)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []applicationModel
	if err := page(q.Order("created_at DESC, id DESC"), offset, limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]application.LoanApplication, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, int(total), nil
}

func (r *repo) CountApplicationsByStatus(ctx context.Context) (map[application.Status]int, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := r.q(ctx).Model(&applicationModel{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[application.Status]int, len(rows))
	for _, row := range rows {
		counts[application.Status(row.Status)] = row.N
	}
	return counts, nil
}

// =============================================================================
// REPORTING
// =============================================================================

func (r *repo) ListAccounts(ctx context.Context, search string, offset, limit int) ([]ledger.Account, int, error) {
	q := r.q(ctx).Model(&accountModel{})
	if search != "" {
		p := like(search)
		q = q.Where("(full_name LIKE ? OR phone LIKE ? OR email LIKE ? OR account_number LIKE ?)", p, p, p, p)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []accountModel
	if err := page(q.Order("created_at DESC, id DESC"), offset, limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]ledger.Account, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, int(total), nil
}

type transactionLineRow struct {
	transactionModel
	OwnerAccountNumber string
	OwnerFullName      string
	OwnerPhone         string
}

func (r *repo) SearchTransactions(ctx context.Context, f ledger.TransactionFilter, offset, limit int) ([]ledger.TransactionLine, int, error) {
	q := r.q(ctx).Table("transactions AS t").Joins("JOIN accounts a ON a.id = t.account_id")
	if f.Type != "" {
		q = q.Where("t.type = ?", string(f.Type))
	}
	if f.AccountID != 0 {
		q = q.Where("t.account_id = ?", f.AccountID)
	}
	if f.Search != "" {
		p := like(f.Search)
		q = q.Where(`(t.transaction_id LIKE ? OR t.description LIKE ? OR t.reference LIKE ?
			OR a.account_number LIKE ? OR a.full_name LIKE ? OR a.phone LIKE ?)`, p, p, p, p, p, p)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []transactionLineRow
	err := page(q.Select("t.*, a.account_number AS owner_account_number, a.full_name AS owner_full_name, a.phone AS owner_phone").
		Order("t.transaction_date DESC, t.id DESC"), offset, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]ledger.TransactionLine, len(rows))
	for i, row := range rows {
		out[i] = ledger.TransactionLine{
			Transaction:   row.toDomain(),
			AccountNumber: row.OwnerAccountNumber,
			FullName:      row.OwnerFullName,
			Phone:         row.OwnerPhone,
		}
	}
	return out, int(total), nil
}

func (r *repo) Totals(ctx context.Context) (ledger.Totals, error) {
	var row struct {
		Accounts        int
		ActiveAccounts  int
		LoanOutstanding decimal.Decimal
		SavingsHeld     decimal.Decimal
		TotalBorrowed   decimal.Decimal
		TotalRepaid     decimal.Decimal
	}
	err := r.q(ctx).Model(&accountModel{}).Select(`
		COUNT(*) AS accounts,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS active_accounts,
		COALESCE(SUM(loan_balance), 0) AS loan_outstanding,
		COALESCE(SUM(savings_balance), 0) AS savings_held,
		COALESCE(SUM(total_borrowed), 0) AS total_borrowed,
		COALESCE(SUM(total_repaid), 0) AS total_repaid`, string(ledger.AccountActive)).
		Scan(&row).Error
	if err != nil {
		return ledger.Totals{}, err
	}
	return ledger.Totals{
		Accounts:        row.Accounts,
		ActiveAccounts:  row.ActiveAccounts,
		LoanOutstanding: ledger.Money(row.LoanOutstanding),
		SavingsHeld:     ledger.Money(row.SavingsHeld),
		TotalBorrowed:   ledger.Money(row.TotalBorrowed),
		TotalRepaid:     ledger.Money(row.TotalRepaid),
	}, nil
}
