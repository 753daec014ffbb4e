package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/events"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	ApplicationID string
	Application   *application.LoanApplication
}

// SubmitApplication validates and stores a new application. Invalid input
// returns application.ValidationErrors as the error value.
func (s *Service) SubmitApplication(ctx context.Context, p application.Payload) (SubmitResult, error) {
	app, err := s.workflow.Submit(ctx, p)
	if err != nil {
		return SubmitResult{}, err
	}
	s.publish(ctx, events.ApplicationSubmitted, applicationEvent(app, ""))
	return SubmitResult{ApplicationID: app.ApplicationID, Application: app}, nil
}

// ChangeApplicationStatus moves an application through its lifecycle.
// Disbursement also publishes the resulting ledger transaction.
func (s *Service) ChangeApplicationStatus(ctx context.Context, applicationID string, to application.Status, notes string) (*application.LoanApplication, error) {
	change, err := s.workflow.ChangeStatus(ctx, applicationID, to, notes)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.ApplicationStatusChanged, applicationEvent(change.Application, change.From))
	if change.Disbursement != nil {
		s.publish(ctx, events.TransactionRecorded, transactionEvent(change.Disbursement))
	}
	return change.Application, nil
}

// GetApplication loads one application by its generated ID.
func (s *Service) GetApplication(ctx context.Context, applicationID string) (*application.LoanApplication, error) {
	return s.workflow.Get(ctx, applicationID)
}

// ListApplications returns one page of applications, newest first.
func (s *Service) ListApplications(ctx context.Context, f application.Filter, page, pageSize int) (Page[application.LoanApplication], error) {
	w := s.window(page, pageSize)
	apps, total, err := s.workflow.List(ctx, f, w.offset, w.size)
	if err != nil {
		return Page[application.LoanApplication]{}, err
	}
	return newPage(apps, total, w), nil
}

// ApplicationSchedule is an application with its repayment plan.
type ApplicationSchedule struct {
	Application  *application.LoanApplication
	Installments []loancalc.Installment
	Total        decimal.Decimal
}

// ApplicationSchedule derives the repayment schedule of an application
// from its stored total payable.
func (s *Service) ApplicationSchedule(ctx context.Context, applicationID string) (*ApplicationSchedule, error) {
	app, err := s.workflow.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	sched, err := s.workflow.Schedule(app, s.now())
	if err != nil {
		return nil, fmt.Errorf("schedule for %s: %w", app.ApplicationID, err)
	}
	return &ApplicationSchedule{
		Application:  app,
		Total:        sched.Total(),
		Installments: sched.Collect(),
	}, nil
}

// =============================================================================
// CALCULATOR
// =============================================================================

// QuoteRequest is a loan calculator input. A null rate uses the default.
type QuoteRequest struct {
	Amount         decimal.Decimal
	Rate           decimal.NullDecimal
	DurationMonths int
	Frequency      loancalc.Frequency
}

// Quote prices a loan without storing anything. The amount and duration
// must be within the lending bounds.
func (s *Service) Quote(req QuoteRequest) (loancalc.Quote, error) {
	rules := s.Rules()
	errs := application.ValidationErrors{}
	switch {
	case !req.Amount.IsPositive() || !req.Amount.Equal(ledger.Money(req.Amount)):
		errs["loan_amount"] = "Valid loan amount is required."
	case req.Amount.LessThan(rules.MinLoanAmount):
		errs["loan_amount"] = "Minimum loan amount is " + loancalc.FormatCurrency(rules.MinLoanAmount, rules.CurrencySymbol)
	case req.Amount.GreaterThan(rules.MaxLoanAmount):
		errs["loan_amount"] = "Maximum loan amount is " + loancalc.FormatCurrency(rules.MaxLoanAmount, rules.CurrencySymbol)
	}
	switch {
	case req.DurationMonths < rules.MinDuration:
		errs["duration_months"] = fmt.Sprintf("Minimum loan duration is %d month(s)", rules.MinDuration)
	case req.DurationMonths > rules.MaxDuration:
		errs["duration_months"] = fmt.Sprintf("Maximum loan duration is %d months", rules.MaxDuration)
	}
	if !req.Frequency.Valid() {
		errs["repayment_rate"] = "Repayment rate is required."
	}
	rate := rules.DefaultInterestRate
	if req.Rate.Valid {
		rate = req.Rate.Decimal
	}
	if rate.IsNegative() {
		errs["interest_rate"] = "Valid interest rate is required."
	}
	if len(errs) > 0 {
		return loancalc.Quote{}, errs
	}
	return loancalc.Calculate(req.Amount, rate, req.DurationMonths, req.Frequency)
}
