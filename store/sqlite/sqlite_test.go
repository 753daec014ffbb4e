/*
sqlite_test.go - Tests for the SQLite store

Tests for:
- Account and transaction persistence through the Ledger
- Uniqueness and append-only guarantees
- WithTx / WithinTx rollback
- Application compare-and-set status updates, listing and counts
- Reporting reads
- Error mapping (sqlmock)
*/
package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/idgen"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
	"github.com/warp/loan-ledger/store/sqlite"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newLedger(s *sqlite.Store) *ledger.Ledger {
	return ledger.New(s, idgen.New())
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAccount(phone, number string) *ledger.Account {
	return &ledger.Account{
		AccountNumber:  number,
		Phone:          phone,
		FullName:       "Ada Obi",
		LoanBalance:    decimal.Zero,
		SavingsBalance: decimal.Zero,
		TotalBorrowed:  decimal.Zero,
		TotalRepaid:    decimal.Zero,
		TotalSavings:   decimal.Zero,
		Status:         ledger.AccountActive,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}

func newApplication(id, phone string, created time.Time) *application.LoanApplication {
	return &application.LoanApplication{
		ApplicationID:    id,
		FullName:         "Ada Obi",
		Email:            "ada@example.com",
		Phone:            phone,
		Gender:           "female",
		DateOfBirth:      time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		MaritalStatus:    "single",
		State:            "Lagos",
		LGA:              "Ikeja",
		HomeAddress:      "12 Allen Avenue, Ikeja",
		LoanPurpose:      "Restock the provision shop",
		LoanAmount:       money("50000"),
		InterestRate:     money("10"),
		DurationMonths:   6,
		RepaymentRate:    loancalc.Monthly,
		TotalPayable:     money("55000"),
		MonthlyPayment:   money("9166.67"),
		PaymentAmount:    money("9166.67"),
		BankName:         "First Bank",
		AccountNumber:    "0123456789",
		AccountName:      "Ada Obi",
		BVN:              "12345678901",
		GuarantorName:    "Chidi Obi",
		GuarantorPhone:   "08020000000",
		GuarantorAddress: "4 Broad Street, Lagos",
		Status:           application.StatusPending,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

// =============================================================================
// LEDGER ON SQLITE
// =============================================================================

func TestLedger_RecordAndHistory(t *testing.T) {
	// GIVEN: An account on SQLite
	// WHEN: Depositing twice and withdrawing once
	// THEN: Balances persist and history is newest first

	s := newStore(t)
	l := newLedger(s)
	ctx := context.Background()

	acct, err := l.UpsertAccount(ctx, ledger.AccountProfile{Phone: "0803-123-4567", FullName: "Ada Obi"})
	require.NoError(t, err)
	assert.Equal(t, "08031234567", acct.Phone)

	for _, e := range []ledger.Entry{
		{AccountRef: acct.Phone, Type: ledger.TxSavingsDeposit, Amount: money("5000")},
		{AccountRef: acct.AccountNumber, Type: ledger.TxSavingsDeposit, Amount: money("2500.50")},
		{AccountRef: acct.Phone, Type: ledger.TxSavingsWithdrawal, Amount: money("1000")},
	} {
		_, err := l.Record(ctx, e)
		require.NoError(t, err)
	}

	got, err := s.GetAccountByNumber(ctx, acct.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, "6500.50", got.SavingsBalance.StringFixed(2))
	assert.Equal(t, "7500.50", got.TotalSavings.StringFixed(2))

	history, err := l.History(ctx, acct.Phone, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ledger.TxSavingsWithdrawal, history[0].Type)
	assert.Equal(t, ledger.TxSavingsDeposit, history[2].Type)
	assert.True(t, history[0].BalanceBefore.Equal(money("7500.50")))
	assert.True(t, history[0].BalanceAfter.Equal(money("6500.50")))

	limited, err := l.History(ctx, acct.Phone, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLedger_ConcurrentDeposits(t *testing.T) {
	// GIVEN: One account
	// WHEN: 20 goroutines deposit 100 each
	// THEN: The balance is exactly 2000 and every balance_before is distinct

	s := newStore(t)
	l := newLedger(s)
	ctx := context.Background()
	acct, err := l.UpsertAccount(ctx, ledger.AccountProfile{Phone: "08031234567"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Record(ctx, ledger.Entry{
				AccountRef: acct.AccountNumber,
				Type:       ledger.TxSavingsDeposit,
				Amount:     money("100"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := l.GetAccount(ctx, acct.Phone)
	require.NoError(t, err)
	assert.Equal(t, "2000.00", got.SavingsBalance.StringFixed(2))

	history, err := l.History(ctx, acct.Phone, 0)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, tx := range history {
		key := tx.BalanceBefore.StringFixed(2)
		assert.False(t, seen[key], "balance_before %s read twice", key)
		seen[key] = true
	}
}

func TestLedger_Reverse(t *testing.T) {
	s := newStore(t)
	l := newLedger(s)
	ctx := context.Background()
	acct, err := l.UpsertAccount(ctx, ledger.AccountProfile{Phone: "08031234567"})
	require.NoError(t, err)

	deposit, err := l.Record(ctx, ledger.Entry{AccountRef: acct.Phone, Type: ledger.TxSavingsDeposit, Amount: money("800")})
	require.NoError(t, err)

	reversal, err := l.Reverse(ctx, deposit.TransactionID, "keyed twice")
	require.NoError(t, err)
	assert.Equal(t, ledger.TxReversal, reversal.Type)
	assert.Equal(t, deposit.TransactionID, reversal.ReversesID)

	orig, err := s.GetTransaction(ctx, deposit.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxReversed, orig.Status)

	_, err = l.Reverse(ctx, deposit.TransactionID, "again")
	assert.ErrorIs(t, err, ledger.ErrAlreadyReversed)

	got, err := l.GetAccount(ctx, acct.Phone)
	require.NoError(t, err)
	assert.True(t, got.SavingsBalance.IsZero())
}

// =============================================================================
// STORE GUARANTEES
// =============================================================================

func TestInsertAccount_DuplicatePhoneIsConflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertAccount(ctx, newAccount("08031234567", "1001234567")))
	err := s.InsertAccount(ctx, newAccount("08031234567", "1007654321"))
	assert.ErrorIs(t, err, ledger.ErrConflict)

	err = s.InsertAccount(ctx, newAccount("08099999999", "1001234567"))
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestAccountNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetAccountByPhone(ctx, "08000000000")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = s.GetTransaction(ctx, "TXN20260301000000")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestMarkReversed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	acct := newAccount("08031234567", "1001234567")
	require.NoError(t, s.InsertAccount(ctx, acct))

	tx := &ledger.Transaction{
		TransactionID:   "TXN20260301123456",
		AccountID:       acct.ID,
		Type:            ledger.TxSavingsDeposit,
		Field:           ledger.FieldSavings,
		Amount:          money("10"),
		BalanceBefore:   decimal.Zero,
		BalanceAfter:    money("10"),
		PaymentMethod:   ledger.PaymentCash,
		Status:          ledger.TxCompleted,
		TransactionDate: testNow,
	}
	require.NoError(t, s.AppendTransaction(ctx, tx))
	assert.NotZero(t, tx.ID)

	dup := *tx
	assert.ErrorIs(t, s.AppendTransaction(ctx, &dup), ledger.ErrConflict)

	require.NoError(t, s.MarkReversed(ctx, tx.TransactionID))
	assert.ErrorIs(t, s.MarkReversed(ctx, tx.TransactionID), ledger.ErrAlreadyReversed)
	assert.ErrorIs(t, s.MarkReversed(ctx, "TXN20260301999999"), ledger.ErrTransactionNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A WithTx scope that inserts an account then fails
	// THEN: The account does not exist afterwards

	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.InsertAccount(ctx, newAccount("08031234567", "1001234567")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetAccountByPhone(ctx, "08031234567")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestWithinTx_RollsBackBothRepositories(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(r application.Repos) error {
		if err := r.Applications.InsertApplication(ctx, newApplication("LA2026000001", "08031234567", testNow)); err != nil {
			return err
		}
		if err := r.Ledger.InsertAccount(ctx, newAccount("08031234567", "1001234567")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetApplication(ctx, "LA2026000001")
	assert.ErrorIs(t, err, application.ErrApplicationNotFound)
	found, err := s.AccountNumberExists(ctx, "1001234567")
	require.NoError(t, err)
	assert.False(t, found)
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func TestApplication_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	app := newApplication("LA2026000001", "08031234567", testNow)
	require.NoError(t, s.InsertApplication(ctx, app))
	assert.NotZero(t, app.ID)

	got, err := s.GetApplication(ctx, "LA2026000001")
	require.NoError(t, err)
	assert.Equal(t, app.FullName, got.FullName)
	assert.Equal(t, app.DateOfBirth, got.DateOfBirth)
	assert.Equal(t, loancalc.Monthly, got.RepaymentRate)
	assert.True(t, got.TotalPayable.Equal(money("55000")))
	assert.True(t, got.InterestRate.Equal(money("10")))
	assert.Equal(t, application.StatusPending, got.Status)
	assert.True(t, got.DisbursedAt.IsZero())
	assert.True(t, got.CreatedAt.Equal(testNow))

	assert.ErrorIs(t, s.InsertApplication(ctx, newApplication("LA2026000001", "08099999999", testNow)), ledger.ErrConflict)
}

func TestUpdateApplicationStatus_CompareAndSet(t *testing.T) {
	// GIVEN: A pending application
	// WHEN: Two updates both expect pending
	// THEN: The first wins, the second is a conflict

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertApplication(ctx, newApplication("LA2026000001", "08031234567", testNow)))

	later := testNow.Add(time.Hour)
	require.NoError(t, s.UpdateApplicationStatus(ctx, "LA2026000001",
		application.StatusPending, application.StatusApproved, "looks good", later))

	err := s.UpdateApplicationStatus(ctx, "LA2026000001",
		application.StatusPending, application.StatusRejected, "", later)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	err = s.UpdateApplicationStatus(ctx, "LA2026999999",
		application.StatusPending, application.StatusApproved, "", later)
	assert.ErrorIs(t, err, application.ErrApplicationNotFound)

	// Empty notes keep the existing ones; disbursed stamps disbursed_at.
	require.NoError(t, s.UpdateApplicationStatus(ctx, "LA2026000001",
		application.StatusApproved, application.StatusDisbursed, "", later))
	got, err := s.GetApplication(ctx, "LA2026000001")
	require.NoError(t, err)
	assert.Equal(t, application.StatusDisbursed, got.Status)
	assert.Equal(t, "looks good", got.AdminNotes)
	assert.True(t, got.DisbursedAt.Equal(later))
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestListApplications(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		app := newApplication(fmt.Sprintf("LA202600000%d", i), fmt.Sprintf("0803000000%d", i), testNow.Add(time.Duration(i)*time.Minute))
		if i == 3 {
			app.FullName = "Bola Tinubu"
		}
		require.NoError(t, s.InsertApplication(ctx, app))
	}
	require.NoError(t, s.UpdateApplicationStatus(ctx, "LA2026000001",
		application.StatusPending, application.StatusApproved, "", testNow))

	all, total, err := s.ListApplications(ctx, application.Filter{}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 2)
	assert.Equal(t, "LA2026000004", all[0].ApplicationID, "newest first")

	approved, total, err := s.ListApplications(ctx, application.Filter{Status: application.StatusApproved}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "LA2026000001", approved[0].ApplicationID)

	found, total, err := s.ListApplications(ctx, application.Filter{Search: "bola"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "LA2026000003", found[0].ApplicationID)

	counts, err := s.CountApplicationsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[application.StatusPending])
	assert.Equal(t, 1, counts[application.StatusApproved])
}

// =============================================================================
// REPORTING
// =============================================================================

func TestReports(t *testing.T) {
	s := newStore(t)
	l := newLedger(s)
	ctx := context.Background()

	ada, err := l.UpsertAccount(ctx, ledger.AccountProfile{Phone: "08031234567", FullName: "Ada Obi"})
	require.NoError(t, err)
	bola, err := l.UpsertAccount(ctx, ledger.AccountProfile{Phone: "08030000000", FullName: "Bola Ade"})
	require.NoError(t, err)

	_, err = l.Record(ctx, ledger.Entry{AccountRef: ada.Phone, Type: ledger.TxLoanDisbursement, Amount: money("11000")})
	require.NoError(t, err)
	_, err = l.Record(ctx, ledger.Entry{AccountRef: ada.Phone, Type: ledger.TxLoanPayment, Amount: money("1000")})
	require.NoError(t, err)
	_, err = l.Record(ctx, ledger.Entry{AccountRef: bola.Phone, Type: ledger.TxSavingsDeposit, Amount: money("300.25"), Description: "weekly contribution"})
	require.NoError(t, err)

	accounts, total, err := s.ListAccounts(ctx, "bola", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, bola.AccountNumber, accounts[0].AccountNumber)

	lines, total, err := s.SearchTransactions(ctx, ledger.TransactionFilter{Type: ledger.TxLoanPayment}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, ada.AccountNumber, lines[0].AccountNumber)
	assert.Equal(t, "Ada Obi", lines[0].FullName)

	lines, total, err = s.SearchTransactions(ctx, ledger.TransactionFilter{Search: "contribution"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, bola.Phone, lines[0].Phone)

	_, total, err = s.SearchTransactions(ctx, ledger.TransactionFilter{AccountID: ada.ID}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Accounts)
	assert.Equal(t, 2, totals.ActiveAccounts)
	assert.Equal(t, "10000.00", totals.LoanOutstanding.StringFixed(2))
	assert.Equal(t, "300.25", totals.SavingsHeld.StringFixed(2))
	assert.Equal(t, "11000.00", totals.TotalBorrowed.StringFixed(2))
	assert.Equal(t, "1000.00", totals.TotalRepaid.StringFixed(2))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorMapping_WithSQLMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := sqlite.NewWithDB(db)
	ctx := context.Background()

	t.Run("unique violation is conflict", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO accounts").
			WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

		err := s.InsertAccount(ctx, newAccount("08031234567", "1001234567"))
		assert.ErrorIs(t, err, ledger.ErrConflict)
	})

	t.Run("zero rows updated is not found", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 0))

		acct := newAccount("08031234567", "1001234567")
		acct.ID = 42
		err := s.UpdateAccountBalances(ctx, acct)
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})

	t.Run("driver failure stays raw", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO transactions").WillReturnError(errors.New("disk I/O error"))

		err := s.AppendTransaction(ctx, &ledger.Transaction{TransactionID: "TXN20260301000001", TransactionDate: testNow})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ledger.ErrConflict)
		assert.Contains(t, err.Error(), "disk I/O error")
	})

	t.Run("rollback when the unit of work fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(ledger.Store) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
