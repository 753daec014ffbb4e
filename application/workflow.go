/*
workflow.go - Loan application state machine

PURPOSE:
  Moves applications through their lifecycle and performs the one money
  movement the lifecycle owns: disbursement.

INVARIANTS:
  1. Only the transitions listed in `transitions` are allowed. Skipping
     (pending -> disbursed) and leaving a terminal state are rejected.
  2. approved -> disbursed commits the account upsert, the disbursement
     row and the status update in ONE unit of work. If any step fails the
     application stays approved and no account or transaction exists.
  3. The status update is conditional on the status read inside the same
     unit of work, so two admins racing on one application cannot both win.

SEE ALSO:
  - repository.go: UnitOfWork
  - ../ledger/ledger.go: RecordIn
*/
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warp/loan-ledger/idgen"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

// transitions is the full lifecycle. Terminal states map to nothing.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusDisbursed},
	StatusDisbursed: {StatusCompleted, StatusDefaulted},
	StatusRejected:  nil,
	StatusCompleted: nil,
	StatusDefaulted: nil,
}

// CanTransitionTo reports whether s -> to is allowed.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Build validates p against r. Shorthand for NewValidator(r).Build.
func Build(p Payload, r Rules, now time.Time) (*LoanApplication, error) {
	return NewValidator(r).Build(p, now)
}

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	store     Store
	ledger    *ledger.Ledger
	ids       *idgen.Generator
	validator *Validator
	now       func() time.Time
	log       *slog.Logger
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

func WithWorkflowClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) { w.now = now }
}

func WithWorkflowLogger(log *slog.Logger) WorkflowOption {
	return func(w *Workflow) { w.log = log }
}

// NewWorkflow wires the workflow to its store and the ledger it disburses
// through. The ledger must share the store's database.
func NewWorkflow(store Store, l *ledger.Ledger, ids *idgen.Generator, v *Validator, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		store:     store,
		ledger:    l,
		ids:       ids,
		validator: v,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Validator returns the validator in use.
func (w *Workflow) Validator() *Validator {
	return w.validator
}

// Submit validates p and persists it as a pending application.
func (w *Workflow) Submit(ctx context.Context, p Payload) (*LoanApplication, error) {
	app, err := w.validator.Build(p, w.now())
	if err != nil {
		return nil, err
	}
	ctx, cancel := w.ledger.WithStorageTimeout(ctx)
	defer cancel()

	err = w.store.WithinTx(ctx, func(r Repos) error {
		id, err := w.ids.Generate(ctx, idgen.KindApplication, r.Applications.ApplicationIDExists)
		if err != nil {
			return err
		}
		app.ApplicationID = id
		return r.Applications.InsertApplication(ctx, app)
	})
	if err != nil {
		return nil, wrap("submit application", err)
	}

	w.log.Info("application submitted",
		"component", "workflow",
		"application_id", app.ApplicationID,
		"amount", app.LoanAmount.StringFixed(ledger.MoneyPlaces))
	return app, nil
}

// StatusChange is the outcome of ChangeStatus.
type StatusChange struct {
	Application *LoanApplication
	From        Status
	// Set only on approved -> disbursed.
	Account      *ledger.Account
	Disbursement *ledger.Transaction
}

// ChangeStatus moves an application to `to`. Non-empty notes replace the
// admin notes.
func (w *Workflow) ChangeStatus(ctx context.Context, applicationID string, to Status, notes string) (*StatusChange, error) {
	applicationID = strings.TrimSpace(applicationID)
	notes = strings.TrimSpace(notes)
	ctx, cancel := w.ledger.WithStorageTimeout(ctx)
	defer cancel()

	app, err := w.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, wrap("load application", err)
	}
	if !to.Valid() {
		return nil, &InvalidTransitionError{ApplicationID: applicationID, From: app.Status, To: to}
	}

	unlock := w.ledger.Lock("application:"+app.ApplicationID, app.Phone)
	defer unlock()

	var change *StatusChange
	err = w.store.WithinTx(ctx, func(r Repos) error {
		current, err := r.Applications.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(to) {
			return &InvalidTransitionError{ApplicationID: applicationID, From: current.Status, To: to}
		}
		change = &StatusChange{From: current.Status}

		now := w.now()
		if to == StatusDisbursed {
			if err := w.disburse(ctx, r.Ledger, current, change); err != nil {
				return err
			}
			current.DisbursedAt = now
		}
		if err := r.Applications.UpdateApplicationStatus(ctx, applicationID, current.Status, to, notes, now); err != nil {
			return err
		}
		current.Status = to
		if notes != "" {
			current.AdminNotes = notes
		}
		current.UpdatedAt = now
		change.Application = current
		return nil
	})
	if err != nil {
		w.log.Warn("status change rejected",
			"component", "workflow",
			"application_id", applicationID,
			"to", to,
			"error", err)
		return nil, wrap("change status", err)
	}

	w.log.Info("application status changed",
		"component", "workflow",
		"application_id", applicationID,
		"from", change.From,
		"to", to)
	return change, nil
}

// disburse upserts the applicant's account and records the disbursement.
func (w *Workflow) disburse(ctx context.Context, s ledger.Store, app *LoanApplication, change *StatusChange) error {
	acct, err := w.ledger.UpsertAccountIn(ctx, s, ledger.AccountProfile{
		Phone:     app.Phone,
		FullName:  app.FullName,
		Email:     app.Email,
		GroupName: app.GroupName,
	})
	if err != nil {
		return err
	}
	appID := app.ID
	tx, err := w.ledger.RecordIn(ctx, s, acct, ledger.Entry{
		AccountRef:        acct.AccountNumber,
		Type:              ledger.TxLoanDisbursement,
		Amount:            app.TotalPayable,
		PaymentMethod:     ledger.PaymentBankTransfer,
		Description:       "Loan disbursement for " + app.ApplicationID,
		Reference:         app.ApplicationID,
		LoanApplicationID: &appID,
	})
	if err != nil {
		return err
	}
	change.Account = acct
	change.Disbursement = tx
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Get loads one application.
func (w *Workflow) Get(ctx context.Context, applicationID string) (*LoanApplication, error) {
	ctx, cancel := w.ledger.WithStorageTimeout(ctx)
	defer cancel()
	app, err := w.store.GetApplication(ctx, strings.TrimSpace(applicationID))
	return app, wrap("get application", err)
}

// List returns one page of applications and the total match count.
func (w *Workflow) List(ctx context.Context, f Filter, offset, limit int) ([]LoanApplication, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ValidationErrors{"status": fmt.Sprintf("Unknown status %q.", f.Status)}
	}
	ctx, cancel := w.ledger.WithStorageTimeout(ctx)
	defer cancel()
	apps, total, err := w.store.ListApplications(ctx, f, offset, limit)
	return apps, total, wrap("list applications", err)
}

// CountByStatus returns the number of applications per status. Every
// status is present, zero when it has no rows.
func (w *Workflow) CountByStatus(ctx context.Context) (map[Status]int, error) {
	ctx, cancel := w.ledger.WithStorageTimeout(ctx)
	defer cancel()
	counts, err := w.store.CountApplicationsByStatus(ctx)
	if err != nil {
		return nil, wrap("count applications", err)
	}
	out := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		out[s] = counts[s]
	}
	return out, nil
}

// Schedule derives the repayment schedule from the stored TotalPayable.
// Disbursed applications are scheduled from their disbursement date,
// everything else from `from`.
func (w *Workflow) Schedule(app *LoanApplication, from time.Time) (*loancalc.Schedule, error) {
	start := from
	if !app.DisbursedAt.IsZero() {
		start = app.DisbursedAt
	}
	return loancalc.ScheduleFor(app.TotalPayable, app.DurationMonths, app.RepaymentRate, start)
}

// wrap leaves application and ledger domain errors alone and marks the
// rest as persistence failures.
func wrap(op string, err error) error {
	if err == nil || IsClientError(err) || IsNotFound(err) {
		return err
	}
	return ledger.WrapPersistence(op, err)
}
