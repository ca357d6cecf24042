package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. It enforces the same version and
// order-id rules as the database store.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	orders   map[string]struct{}
	history  map[string][]Receipt
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		orders:   make(map[string]struct{}),
		history:  make(map[string][]Receipt),
	}
}

func (m *MemoryStore) Create(_ context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.UserID]; ok {
		return fmt.Errorf("%s: %w", account.UserID, ErrAccountExists)
	}
	m.accounts[account.UserID] = cloneAccount(account)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, userID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[userID]
	if !ok {
		return Account{}, fmt.Errorf("%s: %w", userID, ErrAccountNotFound)
	}
	return cloneAccount(acct), nil
}

func (m *MemoryStore) OrderApplied(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[orderID]
	return ok, nil
}

func (m *MemoryStore) Commit(_ context.Context, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[mut.UserID]
	if !ok {
		return fmt.Errorf("%s: %w", mut.UserID, ErrAccountNotFound)
	}
	if acct.Version != mut.ExpectedVersion {
		return fmt.Errorf("%s at version %d, expected %d: %w", mut.UserID, acct.Version, mut.ExpectedVersion, ErrConcurrentModification)
	}
	orderID := mut.Receipt.Order.OrderID
	if _, dup := m.orders[orderID]; dup {
		return fmt.Errorf("order %s: %w", orderID, ErrDuplicateOrder)
	}

	acct = cloneAccount(acct)
	acct.Balance = mut.Balance
	acct.Version = mut.ExpectedVersion + 1
	acct.UpdatedAt = mut.Receipt.AppliedAt
	if mut.Holding.Symbol != "" {
		if mut.Holding.Quantity.IsZero() {
			delete(acct.Holdings, mut.Holding.Symbol)
		} else {
			acct.Holdings[mut.Holding.Symbol] = mut.Holding.Quantity
		}
	}

	m.accounts[mut.UserID] = acct
	m.orders[orderID] = struct{}{}
	m.history[mut.UserID] = append(m.history[mut.UserID], mut.Receipt)
	return nil
}

// History returns the receipts applied to userID, oldest first.
func (m *MemoryStore) History(userID string) []Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Receipt, len(m.history[userID]))
	copy(out, m.history[userID])
	return out
}

func cloneAccount(a Account) Account {
	holdings := make(map[string]decimal.Decimal, len(a.Holdings))
	for sym, qty := range a.Holdings {
		holdings[sym] = qty
	}
	a.Holdings = holdings
	return a
}
