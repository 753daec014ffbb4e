/*
handlers.go - HTTP API handlers for the loan and savings back office

PURPOSE:
  Exposes the service layer via REST API. Handles HTTP request/response
  and JSON serialization, and delegates everything else to service.Service.

ENDPOINTS:
  Public:
    POST   /api/applications                   Submit loan application
    POST   /api/calculator/quote               Price a loan
    GET    /api/health                         Liveness

  Applications (admin):
    GET    /api/applications                   List (?status=&search=&page=&per_page=)
    GET    /api/applications/{id}              Get one
    GET    /api/applications/{id}/schedule     Repayment schedule
    POST   /api/applications/{id}/status       Move through the lifecycle

  Accounts (admin):
    GET    /api/accounts                       List (?search=&page=&per_page=)
    GET    /api/accounts/{ref}                 Balances by phone or account number
    GET    /api/accounts/{ref}/transactions    History (?limit=)
    GET    /api/accounts/{ref}/statement.xlsx  Spreadsheet statement
    POST   /api/accounts/{ref}/penalties       Assess late-payment penalty

  Transactions (admin):
    GET    /api/transactions                   Search (?type=&search=&page=&per_page=)
    POST   /api/transactions                   Record a movement
    GET    /api/transactions/{id}              Get one
    GET    /api/transactions/{id}/receipt.pdf  Printable receipt
    POST   /api/transactions/{id}/reverse      Reverse
    POST   /api/transfers                      Savings transfer
    POST   /api/loans/sweep                    Complete repaid, default overdue loans
    GET    /api/dashboard                      Overview

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, business rule violations (insufficient funds, ...)
  - 401/403: Missing token, wrong role
  - 404: Application, account or transaction not found
  - 409: Invalid status transition, double reversal, idempotency clash
  - 422: Field validation, with a per-field message map
  - 503: Storage failure or timeout
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - export.go: PDF and spreadsheet rendering
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/idgen"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
	"github.com/warp/loan-ledger/service"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc    *service.Service
	health func(context.Context) error
	log    *slog.Logger
}

// NewHandler creates a new handler. health is probed by GET /api/health;
// nil reports healthy.
func NewHandler(svc *service.Service, health func(context.Context) error) *Handler {
	return &Handler{
		svc:    svc,
		health: health,
		log:    slog.Default().With("component", "api"),
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respondError maps a domain error to its HTTP status. Storage and
// internal failures are logged and their details withheld.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs application.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Validation failed", Fields: verrs})
	case application.IsNotFound(err), ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, application.ErrInvalidTransition),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrNotReversible),
		errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	case ledger.IsClientError(err),
		errors.Is(err, service.ErrNoPenaltyDue),
		errors.Is(err, loancalc.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Request rejected", err)
	case errors.Is(err, ledger.ErrPersistenceFailure),
		errors.Is(err, idgen.ErrGenerationExhausted):
		h.log.Error("storage failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable", nil)
	default:
		h.log.Error("unhandled error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

// paging reads ?page= and ?per_page=. Zero values let the service default.
func paging(w http.ResponseWriter, r *http.Request) (page, perPage int, ok bool) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return 0, 0, false
	}
	perPage, err = queryInt(r, "per_page", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid per_page", err)
		return 0, 0, false
	}
	return page, perPage, true
}

// parseAmount reads a monetary field, recording a field error on failure.
func parseAmount(errs application.ValidationErrors, field string, t application.Text) decimal.Decimal {
	d, err := ledger.ParseAmount(t.String())
	if err != nil {
		errs[field] = "Valid amount is required."
		return decimal.Zero
	}
	return d
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.log.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// APPLICATION ENDPOINTS
// =============================================================================

// SubmitApplication validates and stores a loan application.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var p application.Payload
	if !decodeJSON(w, r, &p) {
		return
	}
	res, err := h.svc.SubmitApplication(r.Context(), p)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitApplicationDTO{
		ApplicationID: res.ApplicationID,
		Message:       "Application submitted successfully. Keep your application ID for follow-up.",
		Application:   toApplicationDTO(res.Application),
	})
}

// ListApplications returns one page of applications, newest first.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	page, perPage, ok := paging(w, r)
	if !ok {
		return
	}
	f := application.Filter{
		Status: application.Status(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))),
		Search: r.URL.Query().Get("search"),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	res, err := h.svc.ListApplications(r.Context(), f, page, perPage)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]ApplicationDTO, len(res.Items))
	for i := range res.Items {
		items[i] = toApplicationDTO(&res.Items[i])
	}
	writeJSON(w, http.StatusOK, toPageDTO(res, items))
}

// GetApplication returns one application.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// GetSchedule returns the repayment schedule of an application.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.svc.ApplicationSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(sched))
}

// ChangeStatus moves an application to a new status. Disbursing creates
// or updates the customer's account and records the loan.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	to := application.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if to == "" {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "Validation failed",
			Fields: map[string]string{"status": "Status is required."},
		})
		return
	}

	app, err := h.svc.ChangeApplicationStatus(r.Context(), chi.URLParam(r, "id"), to, req.Notes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// SweepLoans closes repaid loans and defaults overdue ones on demand.
func (h *Handler) SweepLoans(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SweepLoans(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepDTO(res))
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Quote prices a loan without storing anything.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	parseErrs := application.ValidationErrors{}
	q := service.QuoteRequest{
		Amount:    parseAmount(parseErrs, "loan_amount", req.Amount),
		Frequency: loancalc.Frequency(strings.ToLower(req.RepaymentRate.String())),
	}
	if raw := req.InterestRate.String(); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			parseErrs["interest_rate"] = "Valid interest rate is required."
		} else {
			q.Rate = decimal.NewNullDecimal(rate)
		}
	}
	if n, err := strconv.Atoi(req.DurationMonths.String()); err == nil {
		q.DurationMonths = n
	} else {
		parseErrs["duration_months"] = "Valid loan duration is required."
	}

	quote, err := h.svc.Quote(q)
	if err != nil {
		var verrs application.ValidationErrors
		if errors.As(err, &verrs) {
			for field, msg := range parseErrs {
				verrs[field] = msg
			}
		}
		h.respondError(w, r, err)
		return
	}
	if len(parseErrs) > 0 {
		h.respondError(w, r, parseErrs)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteDTO(quote, h.svc.Settings().Currency.Symbol))
}
