/*
Package service is the entry point transports call into.

PURPOSE:
  Service is built once in main from explicit collaborators (ledger,
  workflow, reporting reads, event publisher, settings) and passed to
  the HTTP layer. There is no global state besides the slog default.

EVENTS:
  Every successful write publishes one event after commit. A failed
  publish is logged at warn and does not fail the call.

PAGING:
  Pages are 1-based. Page < 1 is treated as 1. A page size <= 0 uses
  Settings.PerPage; sizes above MaxPageSize are capped.

SEE ALSO:
  - ../application: Validation and workflow
  - ../ledger: Balances and the transaction log
  - ../events: Publisher
*/
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/events"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

// MaxPageSize caps listing page sizes.
const MaxPageSize = 100

const publishTimeout = 5 * time.Second

// Settings are the read-only business settings the service needs.
type Settings struct {
	PerPage     int
	Currency    loancalc.Currency
	PenaltyRate decimal.Decimal
	GraceDays   int
}

// DefaultSettings mirror the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		PerPage:     20,
		Currency:    loancalc.Naira,
		PenaltyRate: decimal.NewFromInt(5),
		GraceDays:   7,
	}
}

type Service struct {
	ledger   *ledger.Ledger
	workflow *application.Workflow
	reports  ledger.Querier
	events   events.Publisher
	settings Settings
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New wires the service. A nil publisher means events are discarded.
func New(l *ledger.Ledger, w *application.Workflow, reports ledger.Querier, pub events.Publisher, settings Settings, opts ...Option) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	if settings.PerPage <= 0 {
		settings.PerPage = DefaultSettings().PerPage
	}
	s := &Service{
		ledger:   l,
		workflow: w,
		reports:  reports,
		events:   pub,
		settings: settings,
		now:      time.Now,
		log:      slog.Default().With("component", "service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the settings in force.
func (s *Service) Settings() Settings {
	return s.settings
}

// Rules returns the application validation bounds in force.
func (s *Service) Rules() application.Rules {
	return s.workflow.Validator().Rules()
}

// =============================================================================
// PAGING
// =============================================================================

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

type window struct {
	page, size, offset int
}

func (s *Service) window(page, size int) window {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.settings.PerPage
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return window{page: page, size: size, offset: (page - 1) * size}
}

func newPage[T any](items []T, total int, w window) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       w.page,
		PageSize:   w.size,
		TotalPages: (total + w.size - 1) / w.size,
	}
}

// =============================================================================
// EVENTS
// =============================================================================

func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	e := events.New(eventType, s.now(), payload)
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("event publish failed",
			"event_id", e.ID,
			"event_type", eventType,
			"error", err)
	}
}

// TransactionEvent is the payload of ledger events.
type TransactionEvent struct {
	TransactionID string `json:"transaction_id"`
	AccountID     int64  `json:"account_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	BalanceAfter  string `json:"balance_after"`
	Reference     string `json:"reference,omitempty"`
	ReversesID    string `json:"reverses_id,omitempty"`
}

func transactionEvent(tx *ledger.Transaction) TransactionEvent {
	return TransactionEvent{
		TransactionID: tx.TransactionID,
		AccountID:     tx.AccountID,
		Type:          string(tx.Type),
		Amount:        tx.Amount.StringFixed(ledger.MoneyPlaces),
		BalanceAfter:  tx.BalanceAfter.StringFixed(ledger.MoneyPlaces),
		Reference:     tx.Reference,
		ReversesID:    tx.ReversesID,
	}
}

// ApplicationEvent is the payload of application events.
type ApplicationEvent struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
	From          string `json:"from,omitempty"`
	LoanAmount    string `json:"loan_amount"`
	TotalPayable  string `json:"total_payable"`
}

func applicationEvent(app *application.LoanApplication, from application.Status) ApplicationEvent {
	return ApplicationEvent{
		ApplicationID: app.ApplicationID,
		Status:        string(app.Status),
		From:          string(from),
		LoanAmount:    app.LoanAmount.StringFixed(ledger.MoneyPlaces),
		TotalPayable:  app.TotalPayable.StringFixed(ledger.MoneyPlaces),
	}
}
