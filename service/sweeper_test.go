package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/events"
	"github.com/warp/loan-ledger/idgen"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/service"
	"github.com/warp/loan-ledger/store/sqlite"
)

// movingClock is a test clock that can be advanced.
type movingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movingClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newSweepService(t *testing.T, clock *movingClock, pub events.Publisher) *service.Service {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ids := idgen.New(idgen.WithClock(clock.Now))
	l := ledger.New(store, ids, ledger.WithClock(clock.Now))
	w := application.NewWorkflow(store, l, ids,
		application.NewValidator(application.DefaultRules()),
		application.WithWorkflowClock(clock.Now))
	return service.New(l, w, store, pub, service.DefaultSettings(), service.WithClock(clock.Now))
}

func repay(t *testing.T, svc *service.Service, phone, amount string) {
	t.Helper()
	_, err := svc.RecordTransaction(context.Background(), ledger.Entry{
		AccountRef: phone,
		Type:       ledger.TxLoanPayment,
		Amount:     decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
}

func TestSweepLoans_CompletesAndDefaults(t *testing.T) {
	// GIVEN: Two monthly 6-month loans disbursed on 2026-03-01, one fully repaid
	// WHEN: Sweeping before and after the final due date plus 7 grace days
	// THEN: The repaid loan completes at once; the other defaults only after 2026-09-08 10:00

	ctx := context.Background()
	clock := &movingClock{now: testNow}
	rec := &events.Recorder{}
	svc := newSweepService(t, clock, rec)

	open := disbursed(t, svc, "08031234567")
	repaid := disbursed(t, svc, "08051234567")
	repay(t, svc, "08051234567", "55000")

	clock.Set(testNow.AddDate(0, 0, 1))
	res, err := svc.SweepLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Checked: 2, Completed: 1}, res)

	got, err := svc.GetApplication(ctx, repaid.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusCompleted, got.Status)
	assert.Equal(t, "Loan fully repaid", got.AdminNotes)

	// Grace period ends exactly at the boundary: not yet overdue.
	clock.Set(time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC))
	res, err = svc.SweepLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Checked: 1}, res)

	clock.Set(time.Date(2026, 9, 8, 10, 0, 1, 0, time.UTC))
	res, err = svc.SweepLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Checked: 1, Defaulted: 1}, res)

	got, err = svc.GetApplication(ctx, open.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusDefaulted, got.Status)
	assert.Contains(t, got.AdminNotes, "2026-09-01")
	assert.Contains(t, got.AdminNotes, "55,000.00")

	// Nothing left to sweep
	res, err = svc.SweepLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{}, res)

	changed := 0
	for _, e := range rec.Events() {
		if e.Type == events.ApplicationStatusChanged {
			changed++
		}
	}
	// approve + disburse for each loan, then complete and default
	assert.Equal(t, 6, changed)
}

func TestSweepLoans_PartialRepaymentStaysOpen(t *testing.T) {
	clock := &movingClock{now: testNow}
	svc := newSweepService(t, clock, nil)

	app := disbursed(t, svc, "08031234567")
	repay(t, svc, "08031234567", "54999.99")

	res, err := svc.SweepLoans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Checked: 1}, res)

	got, err := svc.GetApplication(context.Background(), app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusDisbursed, got.Status)
}

func TestSweeper_StartRunsImmediately(t *testing.T) {
	clock := &movingClock{now: testNow}
	svc := newSweepService(t, clock, nil)

	app := disbursed(t, svc, "08031234567")
	repay(t, svc, "08031234567", "55000")

	sw := service.NewSweeper(svc, time.Hour)
	sw.Start()
	defer sw.Stop()

	require.Eventually(t, func() bool {
		got, err := svc.GetApplication(context.Background(), app.ApplicationID)
		return err == nil && got.Status == application.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweeper_DisabledAndIdempotentStop(t *testing.T) {
	clock := &movingClock{now: testNow}
	svc := newSweepService(t, clock, nil)

	sw := service.NewSweeper(svc, 0)
	sw.Start()
	sw.Stop()
	sw.Stop()

	assert.Equal(t, service.SweepResult{}, sw.RunNow(context.Background()))
}
