/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP contract, kept apart from the domain types so
  columns can be renamed without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts go out as strings with exactly two decimals ("1500.00") and come
  in as strings or JSON numbers. Parsing happens in the handlers with
  ledger.ParseAmount, never through float64.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
	"github.com/warp/loan-ledger/service"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(ledger.MoneyPlaces)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// APPLICATIONS
// =============================================================================

// ApplicationDTO is a loan application in API responses.
type ApplicationDTO struct {
	ApplicationID  string `json:"application_id"`
	Status         string `json:"status"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Gender         string `json:"gender"`
	DateOfBirth    string `json:"date_of_birth"`
	MaritalStatus  string `json:"marital_status"`
	Religion       string `json:"religion,omitempty"`
	Dependents     int    `json:"dependents"`
	State          string `json:"state"`
	LGA            string `json:"lga"`
	HomeAddress    string `json:"home_address"`
	OfficeAddress  string `json:"office_address,omitempty"`
	IDCardType     string `json:"id_card_type,omitempty"`
	IDCardNumber   string `json:"id_card_number,omitempty"`
	Position       string `json:"position,omitempty"`
	GroupName      string `json:"group_name,omitempty"`
	LoanPurpose    string `json:"loan_purpose"`
	LoanAmount     string `json:"loan_amount"`
	InterestRate   string `json:"interest_rate"`
	DurationMonths int    `json:"duration_months"`
	RepaymentRate  string `json:"repayment_rate"`
	TotalPayable   string `json:"total_payable"`
	MonthlyPayment string `json:"monthly_payment"`
	PaymentAmount  string `json:"payment_amount"`

	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BVN           string `json:"bvn"`

	GuarantorName     string `json:"guarantor_name"`
	GuarantorPhone    string `json:"guarantor_phone"`
	GuarantorEmail    string `json:"guarantor_email,omitempty"`
	GuarantorAddress  string `json:"guarantor_address"`
	GuarantorIDType   string `json:"guarantor_id_type,omitempty"`
	GuarantorIDNumber string `json:"guarantor_id_number,omitempty"`

	AdminNotes  string `json:"admin_notes,omitempty"`
	DisbursedAt string `json:"disbursed_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toApplicationDTO(a *application.LoanApplication) ApplicationDTO {
	return ApplicationDTO{
		ApplicationID:     a.ApplicationID,
		Status:            string(a.Status),
		FullName:          a.FullName,
		Email:             a.Email,
		Phone:             a.Phone,
		Gender:            a.Gender,
		DateOfBirth:       a.DateOfBirth.Format("2006-01-02"),
		MaritalStatus:     a.MaritalStatus,
		Religion:          a.Religion,
		Dependents:        a.Dependents,
		State:             a.State,
		LGA:               a.LGA,
		HomeAddress:       a.HomeAddress,
		OfficeAddress:     a.OfficeAddress,
		IDCardType:        a.IDCardType,
		IDCardNumber:      a.IDCardNumber,
		Position:          a.Position,
		GroupName:         a.GroupName,
		LoanPurpose:       a.LoanPurpose,
		LoanAmount:        money(a.LoanAmount),
		InterestRate:      a.InterestRate.String(),
		DurationMonths:    a.DurationMonths,
		RepaymentRate:     string(a.RepaymentRate),
		TotalPayable:      money(a.TotalPayable),
		MonthlyPayment:    money(a.MonthlyPayment),
		PaymentAmount:     money(a.PaymentAmount),
		BankName:          a.BankName,
		AccountNumber:     a.AccountNumber,
		AccountName:       a.AccountName,
		BVN:               a.BVN,
		GuarantorName:     a.GuarantorName,
		GuarantorPhone:    a.GuarantorPhone,
		GuarantorEmail:    a.GuarantorEmail,
		GuarantorAddress:  a.GuarantorAddress,
		GuarantorIDType:   a.GuarantorIDType,
		GuarantorIDNumber: a.GuarantorIDNumber,
		AdminNotes:        a.AdminNotes,
		DisbursedAt:       timestamp(a.DisbursedAt),
		CreatedAt:         timestamp(a.CreatedAt),
		UpdatedAt:         timestamp(a.UpdatedAt),
	}
}

// SubmitApplicationDTO is returned on a successful submission.
type SubmitApplicationDTO struct {
	ApplicationID string         `json:"application_id"`
	Message       string         `json:"message"`
	Application   ApplicationDTO `json:"application"`
}

// StatusChangeRequest moves an application through its lifecycle.
type StatusChangeRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// InstallmentDTO is one scheduled repayment.
type InstallmentDTO struct {
	Number  int    `json:"number"`
	DueDate string `json:"due_date"`
	Payment string `json:"payment"`
	Balance string `json:"balance"`
}

// ScheduleDTO is an application's repayment plan.
type ScheduleDTO struct {
	ApplicationID string           `json:"application_id"`
	Frequency     string           `json:"frequency"`
	Total         string           `json:"total"`
	Installments  []InstallmentDTO `json:"installments"`
}

func toScheduleDTO(s *service.ApplicationSchedule) ScheduleDTO {
	dto := ScheduleDTO{
		ApplicationID: s.Application.ApplicationID,
		Frequency:     string(s.Application.RepaymentRate),
		Total:         money(s.Total),
		Installments:  make([]InstallmentDTO, len(s.Installments)),
	}
	for i, inst := range s.Installments {
		dto.Installments[i] = InstallmentDTO{
			Number:  inst.Number,
			DueDate: inst.DueDate.Format("2006-01-02"),
			Payment: money(inst.Payment),
			Balance: money(inst.Balance),
		}
	}
	return dto
}

// =============================================================================
// CALCULATOR
// =============================================================================

// QuoteRequest asks the loan calculator for a price.
type QuoteRequest struct {
	Amount         application.Text `json:"amount"`
	InterestRate   application.Text `json:"interest_rate"`
	DurationMonths application.Text `json:"duration_months"`
	RepaymentRate  application.Text `json:"repayment_rate"`
}

// QuoteDTO is a loan calculator result.
type QuoteDTO struct {
	Principal         string `json:"principal"`
	InterestRate      string `json:"interest_rate"`
	DurationMonths    int    `json:"duration_months"`
	RepaymentRate     string `json:"repayment_rate"`
	TotalPayable      string `json:"total_payable"`
	TotalInterest     string `json:"total_interest"`
	MonthlyPayment    string `json:"monthly_payment"`
	PaymentAmount     string `json:"payment_amount"`
	Installments      int    `json:"installments"`
	TotalPayableLabel string `json:"total_payable_label"`
}

func toQuoteDTO(q loancalc.Quote, symbol string) QuoteDTO {
	return QuoteDTO{
		Principal:         money(q.Principal),
		InterestRate:      q.RatePercent.String(),
		DurationMonths:    q.DurationMonths,
		RepaymentRate:     string(q.Frequency),
		TotalPayable:      money(q.TotalPayable),
		TotalInterest:     money(q.TotalInterest),
		MonthlyPayment:    money(q.MonthlyPayment),
		PaymentAmount:     money(q.PaymentAmount),
		Installments:      q.Installments,
		TotalPayableLabel: loancalc.FormatCurrency(q.TotalPayable, symbol),
	}
}

// =============================================================================
// ACCOUNTS AND TRANSACTIONS
// =============================================================================

// AccountDTO is an account in API responses.
type AccountDTO struct {
	AccountNumber  string `json:"account_number"`
	Phone          string `json:"phone"`
	FullName       string `json:"full_name"`
	Email          string `json:"email,omitempty"`
	GroupName      string `json:"group_name,omitempty"`
	LoanBalance    string `json:"loan_balance"`
	SavingsBalance string `json:"savings_balance"`
	TotalBorrowed  string `json:"total_borrowed"`
	TotalRepaid    string `json:"total_repaid"`
	TotalSavings   string `json:"total_savings"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toAccountDTO(a *ledger.Account) AccountDTO {
	return AccountDTO{
		AccountNumber:  a.AccountNumber,
		Phone:          a.Phone,
		FullName:       a.FullName,
		Email:          a.Email,
		GroupName:      a.GroupName,
		LoanBalance:    money(a.LoanBalance),
		SavingsBalance: money(a.SavingsBalance),
		TotalBorrowed:  money(a.TotalBorrowed),
		TotalRepaid:    money(a.TotalRepaid),
		TotalSavings:   money(a.TotalSavings),
		Status:         string(a.Status),
		CreatedAt:      timestamp(a.CreatedAt),
		UpdatedAt:      timestamp(a.UpdatedAt),
	}
}

// TransactionDTO is a ledger row in API responses.
type TransactionDTO struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	Balance       string `json:"balance"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	Description   string `json:"description,omitempty"`
	Reference     string `json:"reference,omitempty"`
	PaymentMethod string `json:"payment_method"`
	ReversesID    string `json:"reverses_id,omitempty"`
	Status        string `json:"status"`
	Date          string `json:"transaction_date"`

	// Set on cross-account listings.
	AccountNumber string `json:"account_number,omitempty"`
	FullName      string `json:"full_name,omitempty"`
}

func toTransactionDTO(t *ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		TransactionID: t.TransactionID,
		Type:          string(t.Type),
		Balance:       string(t.Field),
		Amount:        money(t.Amount),
		BalanceBefore: money(t.BalanceBefore),
		BalanceAfter:  money(t.BalanceAfter),
		Description:   t.Description,
		Reference:     t.Reference,
		PaymentMethod: string(t.PaymentMethod),
		ReversesID:    t.ReversesID,
		Status:        string(t.Status),
		Date:          timestamp(t.TransactionDate),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i := range txs {
		out[i] = toTransactionDTO(&txs[i])
	}
	return out
}

func toLineDTOs(lines []ledger.TransactionLine) []TransactionDTO {
	out := make([]TransactionDTO, len(lines))
	for i := range lines {
		out[i] = toTransactionDTO(&lines[i].Transaction)
		out[i].AccountNumber = lines[i].AccountNumber
		out[i].FullName = lines[i].FullName
	}
	return out
}

// RecordTransactionRequest records one money movement.
type RecordTransactionRequest struct {
	Account       string           `json:"account"`
	Type          string           `json:"type"`
	Amount        application.Text `json:"amount"`
	PaymentMethod string           `json:"payment_method"`
	Description   string           `json:"description"`
	Reference     string           `json:"reference"`
}

// ReverseRequest reverses a transaction.
type ReverseRequest struct {
	Reason string `json:"reason"`
}

// TransferRequest moves savings between accounts.
type TransferRequest struct {
	From          string           `json:"from"`
	To            string           `json:"to"`
	Amount        application.Text `json:"amount"`
	PaymentMethod string           `json:"payment_method"`
	Description   string           `json:"description"`
	Reference     string           `json:"reference"`
}

// TransferDTO holds both legs of a transfer.
type TransferDTO struct {
	Out TransactionDTO `json:"out"`
	In  TransactionDTO `json:"in"`
}

// PenaltyRequest assesses a late-payment penalty.
type PenaltyRequest struct {
	DaysOverdue int `json:"days_overdue"`
}

// PenaltyDTO is an assessed penalty.
type PenaltyDTO struct {
	AccountNumber string         `json:"account_number"`
	DaysOverdue   int            `json:"days_overdue"`
	Amount        string         `json:"amount"`
	Transaction   TransactionDTO `json:"transaction"`
}

// =============================================================================
// LISTINGS AND DASHBOARD
// =============================================================================

// PageDTO wraps one page of a listing.
type PageDTO[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

func toPageDTO[S, T any](p service.Page[S], items []T) PageDTO[T] {
	return PageDTO[T]{
		Items:      items,
		Total:      p.Total,
		Page:       p.Page,
		PerPage:    p.PageSize,
		TotalPages: p.TotalPages,
	}
}

// SweepDTO reports one loan sweep.
type SweepDTO struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Defaulted int `json:"defaulted"`
	Failed    int `json:"failed"`
}

// DashboardDTO is the admin overview.
type DashboardDTO struct {
	Applications      map[string]int   `json:"applications"`
	TotalApplications int              `json:"total_applications"`
	Accounts          int              `json:"accounts"`
	ActiveAccounts    int              `json:"active_accounts"`
	LoanOutstanding   string           `json:"loan_outstanding"`
	SavingsHeld       string           `json:"savings_held"`
	TotalBorrowed     string           `json:"total_borrowed"`
	TotalRepaid       string           `json:"total_repaid"`
	Recent            []TransactionDTO `json:"recent_transactions"`
}

func toDashboardDTO(d *service.Dashboard) DashboardDTO {
	apps := make(map[string]int, len(d.Applications))
	for s, n := range d.Applications {
		apps[string(s)] = n
	}
	return DashboardDTO{
		Applications:      apps,
		TotalApplications: d.TotalApplications,
		Accounts:          d.Totals.Accounts,
		ActiveAccounts:    d.Totals.ActiveAccounts,
		LoanOutstanding:   money(d.Totals.LoanOutstanding),
		SavingsHeld:       money(d.Totals.SavingsHeld),
		TotalBorrowed:     money(d.Totals.TotalBorrowed),
		TotalRepaid:       money(d.Totals.TotalRepaid),
		Recent:            toLineDTOs(d.Recent),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
