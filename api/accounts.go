package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
)

// defaultHistoryLimit bounds account history when ?limit= is absent.
const defaultHistoryLimit = 50

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// ListAccounts returns one page of accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	page, perPage, ok := paging(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListAccounts(r.Context(), r.URL.Query().Get("search"), page, perPage)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]AccountDTO, len(res.Items))
	for i := range res.Items {
		items[i] = toAccountDTO(&res.Items[i])
	}
	writeJSON(w, http.StatusOK, toPageDTO(res, items))
}

// GetAccount resolves {ref} as a phone number or account number.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.GetAccount(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// GetAccountTransactions returns an account's history, newest first.
func (h *Handler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	txs, err := h.svc.ListTransactions(r.Context(), chi.URLParam(r, "ref"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// AssessPenalty charges a late-payment penalty on the outstanding loan.
func (h *Handler) AssessPenalty(w http.ResponseWriter, r *http.Request) {
	var req PenaltyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DaysOverdue <= 0 {
		h.respondError(w, r, application.ValidationErrors{"days_overdue": "Days overdue must be greater than zero."})
		return
	}

	res, err := h.svc.AssessPenalty(r.Context(), chi.URLParam(r, "ref"), req.DaysOverdue)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PenaltyDTO{
		AccountNumber: res.Account.AccountNumber,
		DaysOverdue:   res.DaysOverdue,
		Amount:        money(res.Amount),
		Transaction:   toTransactionDTO(res.Transaction),
	})
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// SearchTransactions searches the whole ledger.
func (h *Handler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	page, perPage, ok := paging(w, r)
	if !ok {
		return
	}
	f := ledger.TransactionFilter{
		Type:   ledger.TxType(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type")))),
		Search: r.URL.Query().Get("search"),
	}
	res, err := h.svc.SearchTransactions(r.Context(), f, page, perPage)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(res, toLineDTOs(res.Items)))
}

// GetTransaction returns one transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// RecordTransaction records a deposit, withdrawal, repayment or penalty.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := application.ValidationErrors{}
	if strings.TrimSpace(req.Account) == "" {
		errs["account"] = "Account number or phone is required."
	}
	if strings.TrimSpace(req.Type) == "" {
		errs["type"] = "Transaction type is required."
	}
	amount := parseAmount(errs, "amount", req.Amount)
	if len(errs) > 0 {
		h.respondError(w, r, errs)
		return
	}

	tx, err := h.svc.RecordTransaction(r.Context(), ledger.Entry{
		AccountRef:    req.Account,
		Type:          ledger.TxType(strings.ToLower(strings.TrimSpace(req.Type))),
		Amount:        amount,
		PaymentMethod: ledger.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Description:   req.Description,
		Reference:     req.Reference,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ReverseTransaction appends a compensating row.
func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := h.svc.ReverseTransaction(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// Transfer moves savings between two accounts.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := application.ValidationErrors{}
	if strings.TrimSpace(req.From) == "" {
		errs["from"] = "Source account is required."
	}
	if strings.TrimSpace(req.To) == "" {
		errs["to"] = "Destination account is required."
	}
	amount := parseAmount(errs, "amount", req.Amount)
	if len(errs) > 0 {
		h.respondError(w, r, errs)
		return
	}

	res, err := h.svc.Transfer(r.Context(), ledger.TransferRequest{
		From:          req.From,
		To:            req.To,
		Amount:        amount,
		PaymentMethod: ledger.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Description:   req.Description,
		Reference:     req.Reference,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TransferDTO{
		Out: toTransactionDTO(res.Out),
		In:  toTransactionDTO(res.In),
	})
}

// Dashboard returns the admin overview.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}
