package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/events"
	"github.com/warp/loan-ledger/idgen"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
	"github.com/warp/loan-ledger/service"
	"github.com/warp/loan-ledger/store/sqlite"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e events.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

func ofType(eventType string) any {
	return mock.MatchedBy(func(e events.Event) bool { return e.Type == eventType })
}

func newService(t *testing.T, pub events.Publisher) *service.Service {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return testNow }
	ids := idgen.New(idgen.WithClock(clock))
	l := ledger.New(store, ids, ledger.WithClock(clock))
	w := application.NewWorkflow(store, l, ids,
		application.NewValidator(application.DefaultRules()),
		application.WithWorkflowClock(clock))
	return service.New(l, w, store, pub, service.DefaultSettings(), service.WithClock(clock))
}

func payload(phone string) application.Payload {
	return application.Payload{
		FullName:         "Ada Obi",
		Email:            "ada@example.com",
		Phone:            application.Text(phone),
		Gender:           "female",
		DateOfBirth:      "1990-05-17",
		MaritalStatus:    "single",
		State:            "Lagos",
		LGA:              "Ikeja",
		HomeAddress:      "12 Allen Avenue, Ikeja",
		LoanPurpose:      "Restock the provision shop",
		LoanAmount:       "50000",
		InterestRate:     "10",
		DurationMonths:   "6",
		RepaymentRate:    "monthly",
		BankName:         "First Bank",
		AccountNumber:    "0123456789",
		AccountName:      "Ada Obi",
		BVN:              "12345678901",
		GuarantorName:    "Chidi Obi",
		GuarantorPhone:   "08020000000",
		GuarantorAddress: "4 Broad Street, Lagos",
	}
}

// disbursed submits, approves and disburses one application.
func disbursed(t *testing.T, svc *service.Service, phone string) *application.LoanApplication {
	t.Helper()
	ctx := context.Background()
	res, err := svc.SubmitApplication(ctx, payload(phone))
	require.NoError(t, err)
	_, err = svc.ChangeApplicationStatus(ctx, res.ApplicationID, application.StatusApproved, "")
	require.NoError(t, err)
	app, err := svc.ChangeApplicationStatus(ctx, res.ApplicationID, application.StatusDisbursed, "")
	require.NoError(t, err)
	return app
}

// =============================================================================
// EVENTS
// =============================================================================

func TestEvents_PublishedAfterEachWrite(t *testing.T) {
	// GIVEN: A service with a mock publisher
	// WHEN: Submitting, approving and disbursing
	// THEN: One event per write, plus the disbursement transaction

	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, ofType(events.ApplicationSubmitted)).Return(nil).Once()
	pub.On("Publish", mock.Anything, ofType(events.ApplicationStatusChanged)).Return(nil).Twice()
	pub.On("Publish", mock.Anything, ofType(events.TransactionRecorded)).Return(nil).Once()

	svc := newService(t, pub)
	app := disbursed(t, svc, "08031234567")

	assert.Equal(t, application.StatusDisbursed, app.Status)
	pub.AssertExpectations(t)
}

func TestEvents_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	svc := newService(t, pub)
	res, err := svc.SubmitApplication(context.Background(), payload("08031234567"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ApplicationID)

	got, err := svc.GetApplication(context.Background(), res.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusPending, got.Status)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestEvents_NothingPublishedOnFailure(t *testing.T) {
	rec := &events.Recorder{}
	svc := newService(t, rec)

	_, err := svc.SubmitApplication(context.Background(), application.Payload{})
	assert.ErrorIs(t, err, application.ErrValidation)

	_, err = svc.RecordTransaction(context.Background(), ledger.Entry{
		AccountRef: "08039999999", Type: ledger.TxSavingsDeposit, Amount: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Empty(t, rec.Events())
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

func TestTransferAndReverse(t *testing.T) {
	rec := &events.Recorder{}
	svc := newService(t, rec)
	ctx := context.Background()

	ada := disbursed(t, svc, "08031234567")
	bola := disbursed(t, svc, "08030000000")

	_, err := svc.RecordTransaction(ctx, ledger.Entry{
		AccountRef: ada.Phone, Type: ledger.TxSavingsDeposit, Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	res, err := svc.Transfer(ctx, ledger.TransferRequest{From: ada.Phone, To: bola.Phone, Amount: decimal.NewFromInt(400)})
	require.NoError(t, err)
	assert.Equal(t, "600.00", res.Out.BalanceAfter.StringFixed(2))
	assert.Equal(t, "400.00", res.In.BalanceAfter.StringFixed(2))

	rev, err := svc.ReverseTransaction(ctx, res.In.TransactionID, "sent to wrong account")
	require.NoError(t, err)
	assert.Equal(t, ledger.TxReversal, rev.Type)

	recorded := 0
	reversed := 0
	for _, e := range rec.Events() {
		switch e.Type {
		case events.TransactionRecorded:
			recorded++
		case events.TransactionReversed:
			reversed++
		}
	}
	// Two disbursements, one deposit, two transfer legs.
	assert.Equal(t, 5, recorded)
	assert.Equal(t, 1, reversed)

	history, err := svc.ListTransactions(ctx, bola.Phone, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ledger.TxReversal, history[0].Type)
}

func TestAssessPenalty(t *testing.T) {
	// GIVEN: A disbursed loan of 55,000 outstanding
	// WHEN: Assessing 17 days overdue with a 7 day grace at 5% a month
	// THEN: 55000 * 5/100/30 * 10 = 916.67 is added to the loan balance

	svc := newService(t, nil)
	ctx := context.Background()
	app := disbursed(t, svc, "08031234567")

	_, err := svc.AssessPenalty(ctx, app.Phone, 7)
	assert.ErrorIs(t, err, service.ErrNoPenaltyDue)

	res, err := svc.AssessPenalty(ctx, app.Phone, 17)
	require.NoError(t, err)
	assert.Equal(t, "916.67", res.Amount.StringFixed(2))
	assert.Equal(t, ledger.TxPenalty, res.Transaction.Type)

	acct, err := svc.GetAccount(ctx, app.Phone)
	require.NoError(t, err)
	assert.Equal(t, "55916.67", acct.LoanBalance.StringFixed(2))
	assert.Equal(t, "55000.00", acct.TotalBorrowed.StringFixed(2), "penalties are not borrowing")
}

func TestReceiptAndStatement(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	app := disbursed(t, svc, "08031234567")

	stmt, err := svc.Statement(ctx, app.Phone, 0)
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 1)
	assert.Equal(t, app.Phone, stmt.Account.Phone)

	receipt, err := svc.Receipt(ctx, stmt.Transactions[0].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "Fifty-Five Thousand Naira Only", receipt.AmountInWords)
	assert.Equal(t, stmt.Account.AccountNumber, receipt.Account.AccountNumber)

	_, err = svc.Receipt(ctx, "TXN20260301999999")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

// =============================================================================
// LISTINGS
// =============================================================================

func TestListApplications_Paging(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	for _, phone := range []string{"08031234567", "08030000001", "08030000002"} {
		_, err := svc.SubmitApplication(ctx, payload(phone))
		require.NoError(t, err)
	}

	first, err := svc.ListApplications(ctx, application.Filter{}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, 2, first.TotalPages)
	assert.Len(t, first.Items, 2)

	second, err := svc.ListApplications(ctx, application.Filter{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)

	empty, err := svc.ListApplications(ctx, application.Filter{Status: application.StatusDisbursed}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, empty.PageSize)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.TotalPages)
}

func TestSearchTransactions(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	app := disbursed(t, svc, "08031234567")

	page, err := svc.SearchTransactions(ctx, ledger.TransactionFilter{Search: app.ApplicationID}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Ada Obi", page.Items[0].FullName)

	page, err = svc.SearchTransactions(ctx, ledger.TransactionFilter{Type: ledger.TxSavingsDeposit}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = svc.SearchTransactions(ctx, ledger.TransactionFilter{Type: "gift"}, 1, 10)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransactionType)

	accounts, err := svc.ListAccounts(ctx, "Ada", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, accounts.Total)
}

func TestDashboard(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	disbursed(t, svc, "08031234567")
	_, err := svc.SubmitApplication(ctx, payload("08030000001"))
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalApplications)
	assert.Equal(t, 1, d.Applications[application.StatusPending])
	assert.Equal(t, 1, d.Applications[application.StatusDisbursed])
	assert.Equal(t, 1, d.Totals.Accounts)
	assert.Equal(t, "55000.00", d.Totals.LoanOutstanding.StringFixed(2))
	require.Len(t, d.Recent, 1)
	assert.Equal(t, ledger.TxLoanDisbursement, d.Recent[0].Type)
}

// =============================================================================
// CALCULATOR
// =============================================================================

func TestQuote(t *testing.T) {
	svc := newService(t, nil)

	q, err := svc.Quote(service.QuoteRequest{
		Amount:         decimal.NewFromInt(100000),
		DurationMonths: 3,
		Frequency:      loancalc.Weekly,
	})
	require.NoError(t, err)
	assert.Equal(t, "110000.00", q.TotalPayable.StringFixed(2))
	assert.Equal(t, 13, q.Installments)

	q, err = svc.Quote(service.QuoteRequest{
		Amount:         decimal.NewFromInt(100000),
		Rate:           decimal.NewNullDecimal(decimal.Zero),
		DurationMonths: 4,
		Frequency:      loancalc.Monthly,
	})
	require.NoError(t, err)
	assert.Equal(t, "25000.00", q.PaymentAmount.StringFixed(2))

	_, err = svc.Quote(service.QuoteRequest{Amount: decimal.NewFromInt(500), DurationMonths: 30, Frequency: "yearly"})
	var verrs application.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Minimum loan amount is ₦10,000.00", verrs["loan_amount"])
	assert.Contains(t, verrs, "duration_months")
	assert.Contains(t, verrs, "repayment_rate")
}
