/*
sweeper.go - Periodic loan lifecycle sweep

PURPOSE:
  Disbursed applications do not close themselves. The sweep walks every
  disbursed application and moves it on:

    loan balance <= 0                               -> completed
    final installment + grace days in the past,
    balance still outstanding                       -> defaulted

  The balance is the account's, so a customer with two open loans
  completes both only once everything is repaid.

DESIGN:
  - Sweeper runs SweepLoans on a ticker in one background goroutine
  - Runs once immediately on Start
  - A failure on one application is logged and counted; the rest go on
  - Status changes go through ChangeApplicationStatus, so events fire

USAGE:
  sw := service.NewSweeper(svc, time.Hour)
  sw.Start()
  // ... later
  sw.Stop()
*/
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/loancalc"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked   int
	Completed int
	Defaulted int
	Failed    int
}

// SweepLoans closes repaid loans and defaults overdue ones.
func (s *Service) SweepLoans(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	open, err := s.disbursed(ctx)
	if err != nil {
		return res, err
	}

	now := s.now()
	for i := range open {
		app := &open[i]
		res.Checked++

		to, notes, err := s.nextStatus(ctx, app, now)
		if err != nil {
			res.Failed++
			s.log.Warn("sweep skipped application",
				"application_id", app.ApplicationID,
				"error", err)
			continue
		}
		if to == "" {
			continue
		}
		if _, err := s.ChangeApplicationStatus(ctx, app.ApplicationID, to, notes); err != nil {
			res.Failed++
			s.log.Warn("sweep status change failed",
				"application_id", app.ApplicationID,
				"to", to,
				"error", err)
			continue
		}
		switch to {
		case application.StatusCompleted:
			res.Completed++
		case application.StatusDefaulted:
			res.Defaulted++
		}
	}

	s.log.Info("loan sweep finished",
		"checked", res.Checked,
		"completed", res.Completed,
		"defaulted", res.Defaulted,
		"failed", res.Failed)
	return res, nil
}

// disbursed loads every disbursed application before any is changed, so
// status updates cannot shift the pages being read.
func (s *Service) disbursed(ctx context.Context) ([]application.LoanApplication, error) {
	f := application.Filter{Status: application.StatusDisbursed}
	var all []application.LoanApplication
	for offset := 0; ; offset += MaxPageSize {
		apps, total, err := s.workflow.List(ctx, f, offset, MaxPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, apps...)
		if len(apps) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// nextStatus decides where a disbursed application goes. An empty status
// means leave it alone.
func (s *Service) nextStatus(ctx context.Context, app *application.LoanApplication, now time.Time) (application.Status, string, error) {
	acct, err := s.ledger.GetAccount(ctx, app.Phone)
	if err != nil {
		return "", "", err
	}
	if !acct.LoanBalance.IsPositive() {
		return application.StatusCompleted, "Loan fully repaid", nil
	}

	sched, err := s.workflow.Schedule(app, now)
	if err != nil {
		return "", "", fmt.Errorf("schedule: %w", err)
	}
	finalDue := loancalc.DueDate(app.DisbursedAt, app.RepaymentRate, sched.Len())
	if now.After(finalDue.AddDate(0, 0, s.settings.GraceDays)) {
		return application.StatusDefaulted,
			fmt.Sprintf("Final installment was due %s; %s outstanding", finalDue.Format("2006-01-02"),
				loancalc.FormatCurrency(acct.LoanBalance, s.settings.Currency.Symbol)),
			nil
	}
	return "", "", nil
}

// =============================================================================
// BACKGROUND RUNNER
// =============================================================================

// Sweeper runs SweepLoans periodically.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper. An interval <= 0 disables it.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		log:      slog.Default().With("component", "sweeper"),
	}
}

// Start begins sweeping in the background.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.interval <= 0 {
		sw.log.Info("sweeper disabled")
		return
	}
	if sw.ticker != nil {
		return
	}

	sw.ticker = time.NewTicker(sw.interval)
	sw.stop = make(chan struct{})
	sw.wg.Add(1)
	go sw.run(sw.ticker, sw.stop)

	sw.log.Info("sweeper started", "interval", sw.interval)
}

// Stop halts the sweeper and waits for a sweep in flight.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ticker == nil {
		return
	}
	sw.ticker.Stop()
	close(sw.stop)
	sw.wg.Wait()
	sw.ticker = nil
	sw.log.Info("sweeper stopped")
}

func (sw *Sweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer sw.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	sw.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			sw.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (sw *Sweeper) RunNow(ctx context.Context) SweepResult {
	res, err := sw.svc.SweepLoans(ctx)
	if err != nil {
		sw.log.Error("loan sweep failed", "error", err)
	}
	return res
}
