// internal/inventory/infrastructure/ledger.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/inventory/domain"
)

// StockModel maps the stock ledger table.
type StockModel struct {
	ProductID string    `gorm:"column:product_id;primaryKey;size:64"`
	Stock     int64     `gorm:"column:stock;not null"`
	Reserved  int64     `gorm:"column:reserved;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (StockModel) TableName() string { return "stock" }

// GormStockLedger implements port.StockLedger on MySQL. Every mutation is a
// single UPDATE so InnoDB's row-level atomicity is the only synchronization
// in play; no application mutex guards the ledger.
type GormStockLedger struct {
	db *gorm.DB
}

// NewGormStockLedger creates the ledger over an open gorm handle.
func NewGormStockLedger(db *gorm.DB) *GormStockLedger {
	return &GormStockLedger{db: db}
}

// Reserve increments reserved only when enough stock is free. RowsAffected
// zero means the condition failed: that result, not any lock, is the
// INSUFFICIENT_STOCK verdict.
func (l *GormStockLedger) Reserve(ctx context.Context, productID string, qty int64) (bool, error) {
	res := l.db.WithContext(ctx).Model(&StockModel{}).
		Where("product_id = ? AND stock - reserved >= ?", productID, qty).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved + ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "ledger reserve")
	}
	return res.RowsAffected == 1, nil
}

// Release decrements reserved, clamping at zero so a stray double release
// can never drive the counter negative.
func (l *GormStockLedger) Release(ctx context.Context, productID string, qty int64) error {
	res := l.db.WithContext(ctx).Model(&StockModel{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END", qty, qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "ledger release")
	}
	return nil
}

// Commit permanently deducts the quantity from both counters.
func (l *GormStockLedger) Commit(ctx context.Context, productID string, qty int64) error {
	res := l.db.WithContext(ctx).Model(&StockModel{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", qty),
			"reserved":   gorm.Expr("CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END", qty, qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "ledger commit")
	}
	return nil
}

// Get loads one ledger row.
func (l *GormStockLedger) Get(ctx context.Context, productID string) (*domain.StockRecord, error) {
	var model StockModel
	err := l.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStockNotFound
		}
		return nil, errors.Wrap(err, "ledger get")
	}
	return &domain.StockRecord{
		ProductID: model.ProductID,
		Stock:     model.Stock,
		Reserved:  model.Reserved,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// Upsert writes a ledger row outright. Seed and test tooling only; the
// request path never calls it.
func (l *GormStockLedger) Upsert(ctx context.Context, record *domain.StockRecord) error {
	model := StockModel{
		ProductID: record.ProductID,
		Stock:     record.Stock,
		Reserved:  record.Reserved,
		UpdatedAt: time.Now(),
	}
	err := l.db.WithContext(ctx).Save(&model).Error
	return errors.Wrap(err, "ledger upsert")
}
