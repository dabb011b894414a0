// internal/checkout/infrastructure/deadletter_store.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/checkout/domain"
)

// DeadLetterModel maps the manual-reconciliation table.
type DeadLetterModel struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement"`
	OrderRef      string    `gorm:"column:order_ref;size:64;index"`
	ReservationID string    `gorm:"column:reservation_id;size:64;index"`
	Reason        string    `gorm:"column:reason;size:32;not null"`
	Detail        string    `gorm:"column:detail;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (DeadLetterModel) TableName() string { return "checkout_dead_letters" }

// GormDeadLetterStore persists dead letters to MySQL.
type GormDeadLetterStore struct {
	db *gorm.DB
}

func NewGormDeadLetterStore(db *gorm.DB) *GormDeadLetterStore {
	return &GormDeadLetterStore{db: db}
}

func (s *GormDeadLetterStore) Save(ctx context.Context, d *domain.DeadLetter) error {
	model := DeadLetterModel{
		OrderRef:      d.OrderRef,
		ReservationID: d.ReservationID,
		Reason:        d.Reason,
		Detail:        d.Detail,
		CreatedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return errors.Wrap(err, "save dead letter")
	}
	d.ID = model.ID
	return nil
}
