package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/events"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

// ErrNoPenaltyDue is returned when an assessment finds nothing to charge.
var ErrNoPenaltyDue = errors.New("no penalty due")

// RecordTransaction records one money movement.
func (s *Service) RecordTransaction(ctx context.Context, e ledger.Entry) (*ledger.Transaction, error) {
	tx, err := s.ledger.Record(ctx, e)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TransactionRecorded, transactionEvent(tx))
	return tx, nil
}

// ReverseTransaction appends a compensating row for a completed transaction.
func (s *Service) ReverseTransaction(ctx context.Context, transactionID, reason string) (*ledger.Transaction, error) {
	tx, err := s.ledger.Reverse(ctx, transactionID, reason)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TransactionReversed, transactionEvent(tx))
	return tx, nil
}

// Transfer moves savings between two accounts.
func (s *Service) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.TransferResult, error) {
	res, err := s.ledger.Transfer(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TransactionRecorded, transactionEvent(res.Out))
	s.publish(ctx, events.TransactionRecorded, transactionEvent(res.In))
	return res, nil
}

// PenaltyAssessment is the outcome of AssessPenalty.
type PenaltyAssessment struct {
	Account     *ledger.Account
	DaysOverdue int
	Amount      decimal.Decimal
	Transaction *ledger.Transaction
}

// AssessPenalty charges a late-payment penalty on the outstanding loan
// balance. Within the grace period, or with nothing outstanding, it
// returns ErrNoPenaltyDue.
func (s *Service) AssessPenalty(ctx context.Context, ref string, daysOverdue int) (*PenaltyAssessment, error) {
	acct, err := s.ledger.GetAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	amount := ledger.Money(loancalc.Penalty(acct.LoanBalance, daysOverdue, s.settings.PenaltyRate, s.settings.GraceDays))
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %d days overdue, %d days grace", ErrNoPenaltyDue, daysOverdue, s.settings.GraceDays)
	}

	tx, err := s.RecordTransaction(ctx, ledger.Entry{
		AccountRef:  acct.AccountNumber,
		Type:        ledger.TxPenalty,
		Amount:      amount,
		Description: fmt.Sprintf("Late payment penalty, %d days overdue", daysOverdue),
	})
	if err != nil {
		return nil, err
	}
	return &PenaltyAssessment{Account: acct, DaysOverdue: daysOverdue, Amount: amount, Transaction: tx}, nil
}

// =============================================================================
// READS
// =============================================================================

// GetAccount resolves a phone number or account number.
func (s *Service) GetAccount(ctx context.Context, ref string) (*ledger.Account, error) {
	return s.ledger.GetAccount(ctx, ref)
}

// ListTransactions returns an account's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, ref string, limit int) ([]ledger.Transaction, error) {
	return s.ledger.History(ctx, ref, limit)
}

// GetTransaction loads one transaction.
func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*ledger.Transaction, error) {
	return s.ledger.GetTransaction(ctx, transactionID)
}

// ListAccounts returns one page of accounts matching search.
func (s *Service) ListAccounts(ctx context.Context, search string, page, pageSize int) (Page[ledger.Account], error) {
	w := s.window(page, pageSize)
	ctx, cancel := s.ledger.WithStorageTimeout(ctx)
	defer cancel()
	accounts, total, err := s.reports.ListAccounts(ctx, strings.TrimSpace(search), w.offset, w.size)
	if err != nil {
		return Page[ledger.Account]{}, ledger.WrapPersistence("list accounts", err)
	}
	return newPage(accounts, total, w), nil
}

// SearchTransactions searches transactions across accounts.
func (s *Service) SearchTransactions(ctx context.Context, f ledger.TransactionFilter, page, pageSize int) (Page[ledger.TransactionLine], error) {
	if f.Type != "" && f.Type != ledger.TxReversal && !f.Type.Recordable() {
		return Page[ledger.TransactionLine]{}, fmt.Errorf("%w: %q", ledger.ErrInvalidTransactionType, f.Type)
	}
	f.Search = strings.TrimSpace(f.Search)
	w := s.window(page, pageSize)
	ctx, cancel := s.ledger.WithStorageTimeout(ctx)
	defer cancel()
	lines, total, err := s.reports.SearchTransactions(ctx, f, w.offset, w.size)
	if err != nil {
		return Page[ledger.TransactionLine]{}, ledger.WrapPersistence("search transactions", err)
	}
	return newPage(lines, total, w), nil
}

// Receipt is what a transaction receipt shows.
type Receipt struct {
	Transaction   *ledger.Transaction
	Account       *ledger.Account
	AmountInWords string
	Currency      loancalc.Currency
}

// Receipt gathers a transaction, its owner and the amount in words.
func (s *Service) Receipt(ctx context.Context, transactionID string) (*Receipt, error) {
	tx, err := s.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	acct, err := s.ledger.Owner(ctx, tx)
	if err != nil {
		return nil, err
	}
	words, err := loancalc.AmountToWords(tx.Amount, s.settings.Currency)
	if err != nil {
		return nil, err
	}
	return &Receipt{Transaction: tx, Account: acct, AmountInWords: words, Currency: s.settings.Currency}, nil
}

// Statement is an account with its transaction history.
type Statement struct {
	Account      *ledger.Account
	Transactions []ledger.Transaction
	Currency     loancalc.Currency
}

// Statement loads an account and its history, newest first.
func (s *Service) Statement(ctx context.Context, ref string, limit int) (*Statement, error) {
	acct, err := s.ledger.GetAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.History(ctx, acct.AccountNumber, limit)
	if err != nil {
		return nil, err
	}
	return &Statement{Account: acct, Transactions: txs, Currency: s.settings.Currency}, nil
}
