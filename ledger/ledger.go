/*
ledger.go - The single write path for account balances

PURPOSE:
  The Ledger is the only component allowed to change an account's
  loan_balance or savings_balance. Every change produces one immutable
  Transaction row carrying balance_before and balance_after, so balances
  can always be rebuilt by replaying the log.

CRITICAL INVARIANTS:
  1. SINGLE WRITER: Balances change only through Record/RecordIn/Reverse/Transfer.
  2. SERIALIZED PER ACCOUNT: Read balance, compute, write balance, append row
     happen under the account's lock AND inside one store transaction.
     Two concurrent records on one account never read the same balance_before.
  3. NO PARTIAL STATE: Any failure rolls back both the balance update and
     the transaction row.
  4. APPEND-ONLY: Corrections are reversal rows, never edits.

RECORD FLOW:
  1. Validate type, amount and payment method
  2. Resolve the account (account number first, then phone)
  3. Lock the account (keyed on its phone, which never changes)
  4. WithTx:
       re-read the account
       apply the sign convention (see types.go)
       reject savings going negative (InsufficientFunds)
       reject or clamp loan overpayment (OverpaymentPolicy)
       update balances + cumulative counters
       generate transaction ID, append row
  5. Commit, unlock

REVERSAL:
  Reverse(id) marks the original reversed and appends a reversal row that
  applies the opposite delta to the same balance field. Cumulative counters
  are not touched. A transaction can be reversed at most once.

EXAMPLE:
  l := ledger.New(store, idgen.New())
  tx, err := l.Record(ctx, ledger.Entry{
      AccountRef:    "08031234567",
      Type:          ledger.TxSavingsDeposit,
      Amount:        decimal.NewFromInt(5000),
      PaymentMethod: ledger.PaymentCash,
  })

SEE ALSO:
  - types.go: Sign convention
  - accounts.go: Account upsert (the only place account rows are created)
  - locker.go: Per-account locks
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/idgen"
)

// OverpaymentPolicy decides what happens when a loan payment exceeds
// the outstanding loan balance.
type OverpaymentPolicy string

const (
	// OverpaymentReject fails the payment with ErrOverpayment.
	OverpaymentReject OverpaymentPolicy = "reject"
	// OverpaymentClamp records only the outstanding amount.
	OverpaymentClamp OverpaymentPolicy = "clamp"
)

// Valid reports whether p is a known policy.
func (p OverpaymentPolicy) Valid() bool {
	return p == OverpaymentReject || p == OverpaymentClamp
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store   TxStore
	ids     *idgen.Generator
	locks   *Locker
	overpay OverpaymentPolicy
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithOverpaymentPolicy sets the loan overpayment policy (default reject).
func WithOverpaymentPolicy(p OverpaymentPolicy) Option {
	return func(l *Ledger) { l.overpay = p }
}

// WithTimeout bounds every storage scope. Expiry surfaces as ErrPersistenceFailure.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// WithClock sets the clock used for transaction dates.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithLocker shares a Locker with other components.
func WithLocker(lk *Locker) Option {
	return func(l *Ledger) { l.locks = lk }
}

func New(store TxStore, ids *idgen.Generator, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		ids:     ids,
		locks:   NewLocker(),
		overpay: OverpaymentReject,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock takes the per-account locks for the given keys (phones, or any
// other key a caller needs serialized with ledger writes).
func (l *Ledger) Lock(keys ...string) (unlock func()) {
	return l.locks.Lock(keys...)
}

// WithStorageTimeout applies the configured storage timeout to ctx.
func (l *Ledger) WithStorageTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// =============================================================================
// RECORD
// =============================================================================

// Record applies one money movement to an account and appends the
// matching transaction row, atomically.
func (l *Ledger) Record(ctx context.Context, e Entry) (*Transaction, error) {
	if err := checkEntry(e); err != nil {
		return nil, err
	}
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()

	acct, err := l.resolve(ctx, l.store, e.AccountRef)
	if err != nil {
		return nil, WrapPersistence("resolve account", err)
	}

	unlock := l.locks.Lock(acct.Phone)
	defer unlock()

	var recorded *Transaction
	err = l.store.WithTx(ctx, func(s Store) error {
		current, err := s.GetAccountByPhone(ctx, acct.Phone)
		if err != nil {
			return err
		}
		recorded, err = l.apply(ctx, s, current, e)
		return err
	})
	if err != nil {
		l.log.Warn("record rejected",
			"component", "ledger",
			"account", acct.AccountNumber,
			"type", e.Type,
			"amount", e.Amount.String(),
			"error", err)
		return nil, WrapPersistence("record transaction", err)
	}

	l.log.Info("transaction recorded",
		"component", "ledger",
		"transaction_id", recorded.TransactionID,
		"account", acct.AccountNumber,
		"type", recorded.Type,
		"amount", recorded.Amount.StringFixed(MoneyPlaces),
		"balance_after", recorded.BalanceAfter.StringFixed(MoneyPlaces))
	return recorded, nil
}

// RecordIn applies a movement inside a scope the caller already owns.
// The caller must hold the account lock and pass the account as read
// within s. Used by the application workflow so disbursement commits
// together with the status change.
func (l *Ledger) RecordIn(ctx context.Context, s Store, acct *Account, e Entry) (*Transaction, error) {
	if err := checkEntry(e); err != nil {
		return nil, err
	}
	return l.apply(ctx, s, acct, e)
}

func checkEntry(e Entry) error {
	if !e.Type.Recordable() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, e.Type)
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	if e.PaymentMethod != "" && !e.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, e.PaymentMethod)
	}
	return nil
}

// apply computes the new balance, writes it and appends the row.
func (l *Ledger) apply(ctx context.Context, s Store, acct *Account, e Entry) (*Transaction, error) {
	field := e.Type.Field()
	before := acct.Balance(field)
	amount := e.Amount
	description := e.Description

	switch e.Type {
	case TxSavingsWithdrawal, TxTransferOut:
		if before.LessThan(amount) {
			return nil, &InsufficientFundsError{
				AccountNumber: acct.AccountNumber,
				Field:         field,
				Available:     before,
				Requested:     amount,
			}
		}
	case TxLoanPayment:
		if amount.GreaterThan(before) {
			if l.overpay != OverpaymentClamp || !before.IsPositive() {
				return nil, &OverpaymentError{
					AccountNumber: acct.AccountNumber,
					Outstanding:   before,
					Requested:     amount,
				}
			}
			description = strings.TrimSpace(fmt.Sprintf("%s (clamped from %s)",
				description, amount.StringFixed(MoneyPlaces)))
			amount = before
		}
	}

	delta := amount
	if !e.Type.Increases() {
		delta = amount.Neg()
	}
	after := before.Add(delta)
	acct.setBalance(field, after)

	switch e.Type {
	case TxLoanDisbursement:
		acct.TotalBorrowed = acct.TotalBorrowed.Add(amount)
	case TxLoanPayment:
		acct.TotalRepaid = acct.TotalRepaid.Add(amount)
	case TxSavingsDeposit, TxTransferIn:
		acct.TotalSavings = acct.TotalSavings.Add(amount)
	}

	now := l.now()
	acct.UpdatedAt = now
	if err := s.UpdateAccountBalances(ctx, acct); err != nil {
		return nil, err
	}

	method := e.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	tx := &Transaction{
		AccountID:         acct.ID,
		LoanApplicationID: e.LoanApplicationID,
		Type:              e.Type,
		Field:             field,
		Amount:            amount,
		BalanceBefore:     before,
		BalanceAfter:      after,
		Description:       description,
		Reference:         e.Reference,
		PaymentMethod:     method,
		Status:            TxCompleted,
		TransactionDate:   now,
	}
	if err := l.appendRow(ctx, s, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (l *Ledger) appendRow(ctx context.Context, s Store, tx *Transaction) error {
	id, err := l.ids.Generate(ctx, idgen.KindTransaction, s.TransactionIDExists)
	if err != nil {
		return err
	}
	tx.TransactionID = id
	return s.AppendTransaction(ctx, tx)
}

// =============================================================================
// REVERSAL
// =============================================================================

// Reverse undoes a completed transaction by appending a compensating
// reversal row and marking the original reversed, in one scope.
func (l *Ledger) Reverse(ctx context.Context, transactionID, reason string) (*Transaction, error) {
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()

	orig, err := l.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, WrapPersistence("load transaction", err)
	}
	owner, err := l.store.GetAccountByID(ctx, orig.AccountID)
	if err != nil {
		return nil, WrapPersistence("load account", err)
	}

	unlock := l.locks.Lock(owner.Phone)
	defer unlock()

	var reversal *Transaction
	err = l.store.WithTx(ctx, func(s Store) error {
		orig, err := s.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		switch {
		case orig.Type == TxReversal:
			return fmt.Errorf("%w: %s is itself a reversal", ErrNotReversible, orig.TransactionID)
		case orig.Status == TxReversed:
			return fmt.Errorf("%w: %s", ErrAlreadyReversed, orig.TransactionID)
		case orig.Status != TxCompleted:
			return fmt.Errorf("%w: %s has status %s", ErrNotReversible, orig.TransactionID, orig.Status)
		}

		acct, err := s.GetAccountByID(ctx, orig.AccountID)
		if err != nil {
			return err
		}
		before := acct.Balance(orig.Field)
		after := before.Sub(orig.Delta())
		if after.IsNegative() {
			return &InsufficientFundsError{
				AccountNumber: acct.AccountNumber,
				Field:         orig.Field,
				Available:     before,
				Requested:     orig.Amount,
			}
		}

		now := l.now()
		acct.setBalance(orig.Field, after)
		acct.UpdatedAt = now
		if err := s.UpdateAccountBalances(ctx, acct); err != nil {
			return err
		}
		if err := s.MarkReversed(ctx, orig.TransactionID); err != nil {
			return err
		}

		description := "Reversal of " + orig.TransactionID
		if reason = strings.TrimSpace(reason); reason != "" {
			description += ": " + reason
		}
		reversal = &Transaction{
			AccountID:         acct.ID,
			LoanApplicationID: orig.LoanApplicationID,
			Type:              TxReversal,
			Field:             orig.Field,
			Amount:            orig.Amount,
			BalanceBefore:     before,
			BalanceAfter:      after,
			Description:       description,
			Reference:         orig.TransactionID,
			PaymentMethod:     orig.PaymentMethod,
			ReversesID:        orig.TransactionID,
			Status:            TxCompleted,
			TransactionDate:   now,
		}
		return l.appendRow(ctx, s, reversal)
	})
	if err != nil {
		return nil, WrapPersistence("reverse transaction", err)
	}

	l.log.Info("transaction reversed",
		"component", "ledger",
		"transaction_id", transactionID,
		"reversal_id", reversal.TransactionID)
	return reversal, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// TransferRequest moves savings from one account to another.
type TransferRequest struct {
	From          string
	To            string
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	Description   string
	Reference     string
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Out *Transaction
	In  *Transaction
}

// Transfer records transfer_out on the source and transfer_in on the
// destination in one scope, holding both account locks.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()

	from, err := l.resolve(ctx, l.store, req.From)
	if err != nil {
		return nil, WrapPersistence("resolve source", err)
	}
	to, err := l.resolve(ctx, l.store, req.To)
	if err != nil {
		return nil, WrapPersistence("resolve destination", err)
	}
	if from.ID == to.ID {
		return nil, ErrSameAccount
	}

	unlock := l.locks.Lock(from.Phone, to.Phone)
	defer unlock()

	result := &TransferResult{}
	err = l.store.WithTx(ctx, func(s Store) error {
		src, err := s.GetAccountByPhone(ctx, from.Phone)
		if err != nil {
			return err
		}
		dst, err := s.GetAccountByPhone(ctx, to.Phone)
		if err != nil {
			return err
		}

		outDesc := req.Description
		if outDesc == "" {
			outDesc = "Transfer to " + dst.AccountNumber
		}
		result.Out, err = l.apply(ctx, s, src, Entry{
			Type:          TxTransferOut,
			Amount:        req.Amount,
			PaymentMethod: req.PaymentMethod,
			Description:   outDesc,
			Reference:     req.Reference,
		})
		if err != nil {
			return err
		}

		reference := req.Reference
		if reference == "" {
			reference = result.Out.TransactionID
		}
		result.In, err = l.apply(ctx, s, dst, Entry{
			Type:          TxTransferIn,
			Amount:        req.Amount,
			PaymentMethod: req.PaymentMethod,
			Description:   "Transfer from " + src.AccountNumber,
			Reference:     reference,
		})
		return err
	})
	if err != nil {
		return nil, WrapPersistence("transfer", err)
	}
	return result, nil
}

// =============================================================================
// READS
// =============================================================================

// GetAccount resolves a phone number or account number.
func (l *Ledger) GetAccount(ctx context.Context, ref string) (*Account, error) {
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()
	acct, err := l.resolve(ctx, l.store, ref)
	return acct, WrapPersistence("get account", err)
}

// History returns the newest transactions of an account first.
func (l *Ledger) History(ctx context.Context, ref string, limit int) ([]Transaction, error) {
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()
	acct, err := l.resolve(ctx, l.store, ref)
	if err != nil {
		return nil, WrapPersistence("get account", err)
	}
	txs, err := l.store.ListTransactions(ctx, acct.ID, limit)
	return txs, WrapPersistence("list transactions", err)
}

// GetTransaction loads one transaction by its generated ID.
func (l *Ledger) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()
	tx, err := l.store.GetTransaction(ctx, strings.TrimSpace(transactionID))
	return tx, WrapPersistence("get transaction", err)
}

// Owner loads the account a transaction belongs to.
func (l *Ledger) Owner(ctx context.Context, tx *Transaction) (*Account, error) {
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()
	acct, err := l.store.GetAccountByID(ctx, tx.AccountID)
	return acct, WrapPersistence("get account", err)
}

// resolve tries the reference as an account number first, then as a phone.
func (l *Ledger) resolve(ctx context.Context, s Store, ref string) (*Account, error) {
	ref = NormalizePhone(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrAccountNotFound)
	}
	acct, err := s.GetAccountByNumber(ctx, ref)
	if err == nil {
		return acct, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	return s.GetAccountByPhone(ctx, ref)
}
