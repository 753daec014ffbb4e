// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/loan-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	accounts     map[int64]ledger.Account
	byPhone      map[string]int64
	byNumber     map[string]int64
	transactions []ledger.Transaction
	byTxID       map[string]int
	nextAcctID   int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[int64]ledger.Account),
		byPhone:  make(map[string]int64),
		byNumber: make(map[string]int64),
		byTxID:   make(map[string]int),
	}
}

func (m *Memory) GetAccountByID(_ context.Context, id int64) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountLocked(id)
}

func (m *Memory) GetAccountByPhone(_ context.Context, phone string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byPhoneLocked(phone)
}

func (m *Memory) GetAccountByNumber(_ context.Context, number string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byNumberLocked(number)
}

func (m *Memory) AccountNumberExists(_ context.Context, number string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byNumber[number]
	return ok, nil
}

func (m *Memory) InsertAccount(_ context.Context, acct *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAccountLocked(acct)
}

func (m *Memory) UpdateAccountProfile(_ context.Context, acct *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateProfileLocked(acct)
}

func (m *Memory) UpdateAccountBalances(_ context.Context, acct *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalancesLocked(acct)
}

func (m *Memory) TransactionIDExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byTxID[id]
	return ok, nil
}

func (m *Memory) AppendTransaction(_ context.Context, tx *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) GetTransaction(_ context.Context, id string) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.txLocked(id)
}

func (m *Memory) MarkReversed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markReversedLocked(id)
}

func (m *Memory) ListTransactions(_ context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(accountID, limit), nil
}

// =============================================================================
// LOCKED HELPERS - caller holds mu
// =============================================================================

func (m *Memory) accountLocked(id int64) (*ledger.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, id)
	}
	return &a, nil
}

func (m *Memory) byPhoneLocked(phone string) (*ledger.Account, error) {
	id, ok := m.byPhone[phone]
	if !ok {
		return nil, fmt.Errorf("%w: phone %s", ledger.ErrAccountNotFound, phone)
	}
	return m.accountLocked(id)
}

func (m *Memory) byNumberLocked(number string) (*ledger.Account, error) {
	id, ok := m.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ledger.ErrAccountNotFound, number)
	}
	return m.accountLocked(id)
}

func (m *Memory) insertAccountLocked(acct *ledger.Account) error {
	if _, ok := m.byPhone[acct.Phone]; ok {
		return fmt.Errorf("%w: phone %s already registered", ledger.ErrConflict, acct.Phone)
	}
	if _, ok := m.byNumber[acct.AccountNumber]; ok {
		return fmt.Errorf("%w: account number %s already issued", ledger.ErrConflict, acct.AccountNumber)
	}
	m.nextAcctID++
	acct.ID = m.nextAcctID
	m.accounts[acct.ID] = *acct
	m.byPhone[acct.Phone] = acct.ID
	m.byNumber[acct.AccountNumber] = acct.ID
	return nil
}

func (m *Memory) updateProfileLocked(acct *ledger.Account) error {
	cur, ok := m.accounts[acct.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, acct.ID)
	}
	cur.FullName = acct.FullName
	cur.Email = acct.Email
	cur.GroupName = acct.GroupName
	cur.Status = acct.Status
	cur.UpdatedAt = acct.UpdatedAt
	m.accounts[acct.ID] = cur
	return nil
}

func (m *Memory) updateBalancesLocked(acct *ledger.Account) error {
	cur, ok := m.accounts[acct.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, acct.ID)
	}
	cur.LoanBalance = acct.LoanBalance
	cur.SavingsBalance = acct.SavingsBalance
	cur.TotalBorrowed = acct.TotalBorrowed
	cur.TotalRepaid = acct.TotalRepaid
	cur.TotalSavings = acct.TotalSavings
	cur.UpdatedAt = acct.UpdatedAt
	m.accounts[acct.ID] = cur
	return nil
}

func (m *Memory) appendLocked(tx *ledger.Transaction) error {
	if _, ok := m.byTxID[tx.TransactionID]; ok {
		return fmt.Errorf("%w: transaction id %s already issued", ledger.ErrConflict, tx.TransactionID)
	}
	if _, ok := m.accounts[tx.AccountID]; !ok {
		return fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, tx.AccountID)
	}
	tx.ID = int64(len(m.transactions) + 1)
	m.byTxID[tx.TransactionID] = len(m.transactions)
	m.transactions = append(m.transactions, *tx)
	return nil
}

func (m *Memory) txLocked(id string) (*ledger.Transaction, error) {
	i, ok := m.byTxID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	tx := m.transactions[i]
	return &tx, nil
}

func (m *Memory) markReversedLocked(id string) error {
	i, ok := m.byTxID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	if m.transactions[i].Status != ledger.TxCompleted {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyReversed, id)
	}
	m.transactions[i].Status = ledger.TxReversed
	return nil
}

func (m *Memory) listLocked(accountID int64, limit int) []ledger.Transaction {
	var result []ledger.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID == accountID {
			result = append(result, tx)
		}
	}
	// Newest first; ID breaks ties between rows written in the same instant.
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].TransactionDate.Equal(result[j].TransactionDate) {
			return result[i].TransactionDate.After(result[j].TransactionDate)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store is exclusively locked for the duration of fn.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts     map[int64]ledger.Account
	byPhone      map[string]int64
	byNumber     map[string]int64
	transactions []ledger.Transaction
	byTxID       map[string]int
	nextAcctID   int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		accounts:     make(map[int64]ledger.Account, len(tm.accounts)),
		byPhone:      make(map[string]int64, len(tm.byPhone)),
		byNumber:     make(map[string]int64, len(tm.byNumber)),
		transactions: append([]ledger.Transaction(nil), tm.transactions...),
		byTxID:       make(map[string]int, len(tm.byTxID)),
		nextAcctID:   tm.nextAcctID,
	}
	for k, v := range tm.accounts {
		s.accounts[k] = v
	}
	for k, v := range tm.byPhone {
		s.byPhone[k] = v
	}
	for k, v := range tm.byNumber {
		s.byNumber[k] = v
	}
	for k, v := range tm.byTxID {
		s.byTxID[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.accounts = s.accounts
	tm.byPhone = s.byPhone
	tm.byNumber = s.byNumber
	tm.transactions = s.transactions
	tm.byTxID = s.byTxID
	tm.nextAcctID = s.nextAcctID
}

// txMemoryView runs against the parent without re-locking; WithTx holds mu.
type txMemoryView struct {
	parent *TxMemory
}

func (v *txMemoryView) GetAccountByID(_ context.Context, id int64) (*ledger.Account, error) {
	return v.parent.accountLocked(id)
}

func (v *txMemoryView) GetAccountByPhone(_ context.Context, phone string) (*ledger.Account, error) {
	return v.parent.byPhoneLocked(phone)
}

func (v *txMemoryView) GetAccountByNumber(_ context.Context, number string) (*ledger.Account, error) {
	return v.parent.byNumberLocked(number)
}

func (v *txMemoryView) AccountNumberExists(_ context.Context, number string) (bool, error) {
	_, ok := v.parent.byNumber[number]
	return ok, nil
}

func (v *txMemoryView) InsertAccount(_ context.Context, acct *ledger.Account) error {
	return v.parent.insertAccountLocked(acct)
}

func (v *txMemoryView) UpdateAccountProfile(_ context.Context, acct *ledger.Account) error {
	return v.parent.updateProfileLocked(acct)
}

func (v *txMemoryView) UpdateAccountBalances(_ context.Context, acct *ledger.Account) error {
	return v.parent.updateBalancesLocked(acct)
}

func (v *txMemoryView) TransactionIDExists(_ context.Context, id string) (bool, error) {
	_, ok := v.parent.byTxID[id]
	return ok, nil
}

func (v *txMemoryView) AppendTransaction(_ context.Context, tx *ledger.Transaction) error {
	return v.parent.appendLocked(tx)
}

func (v *txMemoryView) GetTransaction(_ context.Context, id string) (*ledger.Transaction, error) {
	return v.parent.txLocked(id)
}

func (v *txMemoryView) MarkReversed(_ context.Context, id string) error {
	return v.parent.markReversedLocked(id)
}

func (v *txMemoryView) ListTransactions(_ context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	return v.parent.listLocked(accountID, limit), nil
}
