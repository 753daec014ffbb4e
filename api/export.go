/*
export.go - Printable receipts and spreadsheet statements

  GET /api/transactions/{id}/receipt.pdf   A4 receipt, amount in figures and words
  GET /api/accounts/{ref}/statement.xlsx   Balances plus full history, newest first

Documents are rendered into memory before anything is written, so a
rendering failure still produces a JSON error instead of a truncated file.

The core PDF fonts are cp1252; text goes through the gofpdf Unicode
translator and amounts are printed as "55,000.00 Naira" since the naira
sign has no glyph there.
*/
package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"
	"github.com/warp/loan-ledger/loancalc"
	"github.com/warp/loan-ledger/service"
)

const (
	pdfContentType  = "application/pdf"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateTimeLayout  = "2006-01-02 15:04:05"
)

// ExportReceipt renders a transaction receipt as PDF.
func (h *Handler) ExportReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := renderReceipt(&buf, rec); err != nil {
		h.respondError(w, r, fmt.Errorf("render receipt: %w", err))
		return
	}
	writeFile(w, pdfContentType, "receipt-"+rec.Transaction.TransactionID+".pdf", buf.Bytes())
}

// ExportStatement renders an account statement as a spreadsheet.
func (h *Handler) ExportStatement(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	st, err := h.svc.Statement(r.Context(), chi.URLParam(r, "ref"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := renderStatement(&buf, st); err != nil {
		h.respondError(w, r, fmt.Errorf("render statement: %w", err))
		return
	}
	writeFile(w, xlsxContentType, "statement-"+st.Account.AccountNumber+".xlsx", buf.Bytes())
}

func writeFile(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// =============================================================================
// PDF
// =============================================================================

func renderReceipt(buf *bytes.Buffer, rec *service.Receipt) error {
	tx, acct := rec.Transaction, rec.Account

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Transaction Receipt "+tx.TransactionID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Transaction Receipt", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tx.TransactionID, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Date", tx.TransactionDate.Format(dateTimeLayout)},
		{"Account Number", acct.AccountNumber},
		{"Customer", acct.FullName},
		{"Phone", acct.Phone},
		{"Transaction Type", label(string(tx.Type))},
		{"Payment Method", label(string(tx.PaymentMethod))},
		{"Amount", amountLabel(tx.Amount, rec.Currency)},
		{"Balance Before", amountLabel(tx.BalanceBefore, rec.Currency)},
		{"Balance After", amountLabel(tx.BalanceAfter, rec.Currency)},
		{"Reference", tx.Reference},
		{"Description", tx.Description},
		{"Status", label(string(tx.Status))},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(50, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, tr(row[1]), "1", 1, "", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "Amount in words", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "I", 11)
	pdf.MultiCell(0, 7, tr(rec.AmountInWords), "", "", false)

	return pdf.Output(buf)
}

func amountLabel(d decimal.Decimal, c loancalc.Currency) string {
	return loancalc.FormatCurrency(d, "") + " " + c.Major
}

// label turns "loan_disbursement" into "Loan Disbursement".
func label(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// =============================================================================
// SPREADSHEET
// =============================================================================

var statementColumns = []string{
	"Date", "Transaction ID", "Type", "Balance", "Amount",
	"Balance Before", "Balance After", "Payment Method", "Reference", "Description", "Status",
}

func renderStatement(buf *bytes.Buffer, st *service.Statement) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Statement")
	if err != nil {
		return err
	}

	acct := st.Account
	summary := [][2]string{
		{"Account Number", acct.AccountNumber},
		{"Customer", acct.FullName},
		{"Phone", acct.Phone},
		{"Currency", st.Currency.Major},
		{"Loan Balance", money(acct.LoanBalance)},
		{"Savings Balance", money(acct.SavingsBalance)},
		{"Total Borrowed", money(acct.TotalBorrowed)},
		{"Total Repaid", money(acct.TotalRepaid)},
	}
	for _, kv := range summary {
		row := sheet.AddRow()
		row.AddCell().SetString(kv[0])
		row.AddCell().SetString(kv[1])
	}

	header := sheet.AddRow()
	for _, col := range statementColumns {
		header.AddCell().SetString(col)
	}
	for _, tx := range st.Transactions {
		row := sheet.AddRow()
		row.AddCell().SetString(tx.TransactionDate.Format(dateTimeLayout))
		row.AddCell().SetString(tx.TransactionID)
		row.AddCell().SetString(string(tx.Type))
		row.AddCell().SetString(string(tx.Field))
		row.AddCell().SetString(money(tx.Amount))
		row.AddCell().SetString(money(tx.BalanceBefore))
		row.AddCell().SetString(money(tx.BalanceAfter))
		row.AddCell().SetString(string(tx.PaymentMethod))
		row.AddCell().SetString(tx.Reference)
		row.AddCell().SetString(tx.Description)
		row.AddCell().SetString(string(tx.Status))
	}

	return file.Write(buf)
}
