package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/idgen"
)

// NormalizePhone strips everything but digits. Account numbers are
// all digits too, so it is safe on either kind of account reference.
func NormalizePhone(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// UpsertAccount creates or updates the account keyed on phone.
func (l *Ledger) UpsertAccount(ctx context.Context, p AccountProfile) (*Account, error) {
	p.Phone = NormalizePhone(p.Phone)
	if p.Phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidAccount)
	}
	ctx, cancel := l.WithStorageTimeout(ctx)
	defer cancel()

	unlock := l.locks.Lock(p.Phone)
	defer unlock()

	var acct *Account
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		acct, err = l.UpsertAccountIn(ctx, s, p)
		return err
	})
	return acct, WrapPersistence("upsert account", err)
}

// UpsertAccountIn is UpsertAccount inside a caller-owned scope. The
// caller must hold the lock for p.Phone. Existing accounts get their
// non-empty profile fields updated; balances are never touched here.
// New accounts get a generated account number and zero balances.
func (l *Ledger) UpsertAccountIn(ctx context.Context, s Store, p AccountProfile) (*Account, error) {
	p.Phone = NormalizePhone(p.Phone)
	if p.Phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidAccount)
	}
	if p.Status != "" && !p.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidAccount, p.Status)
	}

	existing, err := s.GetAccountByPhone(ctx, p.Phone)
	switch {
	case err == nil:
		mergeProfile(existing, p)
		existing.UpdatedAt = l.now()
		if err := s.UpdateAccountProfile(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case !errors.Is(err, ErrAccountNotFound):
		return nil, err
	}

	number, err := l.ids.Generate(ctx, idgen.KindAccount, s.AccountNumberExists)
	if err != nil {
		return nil, err
	}
	now := l.now()
	status := p.Status
	if status == "" {
		status = AccountActive
	}
	acct := &Account{
		AccountNumber:  number,
		Phone:          p.Phone,
		FullName:       strings.TrimSpace(p.FullName),
		Email:          strings.TrimSpace(p.Email),
		GroupName:      strings.TrimSpace(p.GroupName),
		LoanBalance:    decimal.Zero,
		SavingsBalance: decimal.Zero,
		TotalBorrowed:  decimal.Zero,
		TotalRepaid:    decimal.Zero,
		TotalSavings:   decimal.Zero,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.InsertAccount(ctx, acct); err != nil {
		return nil, err
	}
	l.log.Info("account created",
		"component", "ledger",
		"account", acct.AccountNumber)
	return acct, nil
}

func mergeProfile(a *Account, p AccountProfile) {
	if v := strings.TrimSpace(p.FullName); v != "" {
		a.FullName = v
	}
	if v := strings.TrimSpace(p.Email); v != "" {
		a.Email = v
	}
	if v := strings.TrimSpace(p.GroupName); v != "" {
		a.GroupName = v
	}
	if p.Status != "" {
		a.Status = p.Status
	}
}
