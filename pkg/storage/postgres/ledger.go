package postgres

import (
	"context"
	"errors"
	"fmt"

	"quotecore/internal/ledger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore implements ledger.Store on the ledger_* tables.
type LedgerStore struct {
	db *gorm.DB
}

func (p *PostgresClient) LedgerStore() *LedgerStore {
	return &LedgerStore{db: p.DB}
}

func (s *LedgerStore) Create(ctx context.Context, account ledger.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Create(&AccountRecord{
			UserID:    account.UserID,
			Balance:   account.Balance,
			Version:   account.Version,
			UpdatedAt: account.UpdatedAt,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s: %w", account.UserID, ledger.ErrAccountExists)
		}
		if err != nil {
			return fmt.Errorf("insert account %s: %w", account.UserID, err)
		}

		for sym, qty := range account.Holdings {
			if qty.IsZero() {
				continue
			}
			rec := &HoldingRecord{UserID: account.UserID, Symbol: sym, Quantity: qty, UpdatedAt: account.UpdatedAt}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("insert holding %s/%s: %w", account.UserID, sym, err)
			}
		}
		return nil
	})
}

func (s *LedgerStore) Load(ctx context.Context, userID string) (ledger.Account, error) {
	db := s.db.WithContext(ctx)

	var rec AccountRecord
	err := db.Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, fmt.Errorf("%s: %w", userID, ledger.ErrAccountNotFound)
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("load account %s: %w", userID, err)
	}

	var holdings []HoldingRecord
	if err := db.Where("user_id = ?", userID).Find(&holdings).Error; err != nil {
		return ledger.Account{}, fmt.Errorf("load holdings %s: %w", userID, err)
	}

	acct := ledger.Account{
		UserID:    rec.UserID,
		Balance:   rec.Balance,
		Holdings:  make(map[string]decimal.Decimal, len(holdings)),
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}
	for _, h := range holdings {
		acct.Holdings[h.Symbol] = h.Quantity
	}
	return acct, nil
}

func (s *LedgerStore) OrderApplied(ctx context.Context, orderID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&EntryRecord{}).Where("order_id = ?", orderID).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count entries for order %s: %w", orderID, err)
	}
	return n > 0, nil
}

// Commit applies m in one transaction, guarded by the account version.
func (s *LedgerStore) Commit(ctx context.Context, m ledger.Mutation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AccountRecord{}).
			Where("user_id = ? AND version = ?", m.UserID, m.ExpectedVersion).
			Updates(map[string]any{
				"balance":    m.Balance,
				"version":    m.ExpectedVersion + 1,
				"updated_at": m.Receipt.AppliedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("update account %s: %w", m.UserID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s expected version %d: %w", m.UserID, m.ExpectedVersion, ledger.ErrConcurrentModification)
		}

		if err := upsertHolding(tx, m); err != nil {
			return err
		}

		err := tx.Create(ToEntryRecord(m.Receipt)).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("order %s: %w", m.Receipt.Order.OrderID, ledger.ErrDuplicateOrder)
		}
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", m.Receipt.ID, err)
		}
		return nil
	})
}

func upsertHolding(tx *gorm.DB, m ledger.Mutation) error {
	h := m.Holding
	if h.Symbol == "" {
		return nil
	}
	if h.Quantity.IsZero() {
		err := tx.Where("user_id = ? AND symbol = ?", m.UserID, h.Symbol).Delete(&HoldingRecord{}).Error
		if err != nil {
			return fmt.Errorf("delete holding %s/%s: %w", m.UserID, h.Symbol, err)
		}
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&HoldingRecord{
		UserID:    m.UserID,
		Symbol:    h.Symbol,
		Quantity:  h.Quantity,
		UpdatedAt: m.Receipt.AppliedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("upsert holding %s/%s: %w", m.UserID, h.Symbol, err)
	}
	return nil
}

// History returns the receipts applied to userID, oldest first.
func (s *LedgerStore) History(ctx context.Context, userID string) ([]ledger.Receipt, error) {
	var entries []EntryRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("version ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load entries %s: %w", userID, err)
	}
	out := make([]ledger.Receipt, len(entries))
	for i, e := range entries {
		out[i] = e.ToReceipt()
	}
	return out, nil
}
