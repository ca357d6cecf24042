package ledger

import (
	"context"
	"errors"
	"time"

	"quotecore/internal/pricing"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientHoldings   = errors.New("insufficient holdings")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicateOrder         = errors.New("order already applied")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountExists          = errors.New("account already exists")
	// ErrUnreconciled means the gate (venue) confirmed the order but the
	// ledger could not commit it afterwards; it needs manual reconciliation.
	ErrUnreconciled = errors.New("order confirmed but not committed")
)

// Account is a user's balance, per-symbol holdings and the version used for
// optimistic concurrency.
type Account struct {
	UserID    string                     `json:"userId"`
	Balance   decimal.Decimal            `json:"balance"`
	Holdings  map[string]decimal.Decimal `json:"holdings,omitempty"`
	Version   int64                      `json:"version"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}

// Held returns the quantity held for symbol.
func (a Account) Held(symbol string) decimal.Decimal {
	return a.Holdings[symbol]
}

// Receipt records one applied order.
type Receipt struct {
	ID        string              `json:"id"`
	UserID    string              `json:"userId"`
	Before    decimal.Decimal     `json:"before"`
	After     decimal.Decimal     `json:"after"`
	Delta     decimal.Decimal     `json:"delta"`
	Order     pricing.PricedOrder `json:"order"`
	Version   int64               `json:"version"`
	AppliedAt time.Time           `json:"appliedAt"`
}

// Holding is the new quantity of one symbol after a mutation.
type Holding struct {
	Symbol   string
	Quantity decimal.Decimal
}

// Mutation is one atomic ledger write. Stores must apply it only when the
// stored version equals ExpectedVersion, and must reject a second mutation
// for the same order id.
type Mutation struct {
	UserID          string
	ExpectedVersion int64
	Balance         decimal.Decimal
	Holding         Holding
	Receipt         Receipt
}

// Store is the ledger persistence boundary.
type Store interface {
	Create(ctx context.Context, account Account) error
	Load(ctx context.Context, userID string) (Account, error)
	OrderApplied(ctx context.Context, orderID string) (bool, error)
	Commit(ctx context.Context, m Mutation) error
}

// ReceiptSink receives receipts after they are committed.
type ReceiptSink interface {
	Publish(ctx context.Context, receipt Receipt) error
}
