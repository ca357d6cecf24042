package postgres

import (
	"time"

	"quotecore/internal/ledger"
	"quotecore/internal/pricing"

	"github.com/shopspring/decimal"
)

// AccountRecord is one user's balance row. Version is the optimistic lock.
type AccountRecord struct {
	UserID  string          `gorm:"primaryKey;type:text"`
	Balance decimal.Decimal `gorm:"type:numeric;not null"`
	Version int64           `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (AccountRecord) TableName() string {
	return "ledger_accounts"
}

// HoldingRecord is the quantity of one symbol held by one user.
type HoldingRecord struct {
	UserID    string          `gorm:"primaryKey;type:text"`
	Symbol    string          `gorm:"primaryKey;type:varchar(32)"`
	Quantity  decimal.Decimal `gorm:"type:numeric;not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (HoldingRecord) TableName() string {
	return "ledger_holdings"
}

// EntryRecord is an applied order. The unique order id makes every order
// count at most once.
type EntryRecord struct {
	ID      string `gorm:"primaryKey;type:text"` // receipt id
	OrderID string `gorm:"type:text;not null;uniqueIndex:idx_ledger_entries_order_id"`
	UserID  string `gorm:"type:text;not null;index:idx_ledger_entries_user_version"`
	Version int64  `gorm:"not null;index:idx_ledger_entries_user_version"`

	Symbol    string          `gorm:"type:varchar(32);not null"`
	Direction string          `gorm:"type:varchar(4);not null"`
	Volume    decimal.Decimal `gorm:"type:numeric;not null"`
	Price     decimal.Decimal `gorm:"type:numeric;not null"`

	Before decimal.Decimal `gorm:"type:numeric;not null"`
	After  decimal.Decimal `gorm:"type:numeric;not null"`
	Delta  decimal.Decimal `gorm:"type:numeric;not null"`

	QuoteObservedAt time.Time
	ResolvedAt      time.Time `gorm:"not null"`
	AppliedAt       time.Time `gorm:"not null;index:idx_ledger_entries_applied_at"`
}

func (EntryRecord) TableName() string {
	return "ledger_entries"
}

// ToEntryRecord converts a Receipt for DB insertion.
func ToEntryRecord(r ledger.Receipt) *EntryRecord {
	return &EntryRecord{
		ID:              r.ID,
		OrderID:         r.Order.OrderID,
		UserID:          r.UserID,
		Version:         r.Version,
		Symbol:          r.Order.Symbol,
		Direction:       string(r.Order.Direction),
		Volume:          r.Order.RequestedVolume,
		Price:           r.Order.ExecutionPrice,
		Before:          r.Before,
		After:           r.After,
		Delta:           r.Delta,
		QuoteObservedAt: r.Order.QuoteObservedAt,
		ResolvedAt:      r.Order.ResolvedAt,
		AppliedAt:       r.AppliedAt,
	}
}

// ToReceipt converts a stored entry back into a Receipt.
func (e EntryRecord) ToReceipt() ledger.Receipt {
	return ledger.Receipt{
		ID:     e.ID,
		UserID: e.UserID,
		Before: e.Before,
		After:  e.After,
		Delta:  e.Delta,
		Order: pricing.PricedOrder{
			OrderID:         e.OrderID,
			Symbol:          e.Symbol,
			Direction:       pricing.Direction(e.Direction),
			RequestedVolume: e.Volume,
			ExecutionPrice:  e.Price,
			QuoteObservedAt: e.QuoteObservedAt,
			ResolvedAt:      e.ResolvedAt,
		},
		Version:   e.Version,
		AppliedAt: e.AppliedAt,
	}
}
