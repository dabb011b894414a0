// internal/inventory/infrastructure/reservation_store.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/inventory/domain"
)

// ReservationModel maps the reservations table. Items are stored as a JSON
// column; the list is small (one cart) and never queried relationally.
type ReservationModel struct {
	ReservationID string    `gorm:"column:reservation_id;primaryKey;size:64"`
	UserID        *string   `gorm:"column:user_id;size:64"`
	CartID        string    `gorm:"column:cart_id;size:64"`
	Items         string    `gorm:"column:items;type:json;not null"`
	Status        string    `gorm:"column:status;size:16;not null;index:idx_status_expires"`
	ExpiresAt     time.Time `gorm:"column:expires_at;index:idx_status_expires"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (ReservationModel) TableName() string { return "reservations" }

// GormReservationStore implements port.ReservationStore and the lock
// manager's port.ReservationStatusLookup on MySQL.
type GormReservationStore struct {
	db *gorm.DB
}

func NewGormReservationStore(db *gorm.DB) *GormReservationStore {
	return &GormReservationStore{db: db}
}

// Create persists a new reservation record.
func (s *GormReservationStore) Create(ctx context.Context, r *domain.Reservation) error {
	itemsJSON, err := json.Marshal(r.Items)
	if err != nil {
		return errors.Wrap(err, "marshal reservation items")
	}
	var userID *string
	if r.UserID != "" {
		userID = &r.UserID
	}
	model := ReservationModel{
		ReservationID: r.ID,
		UserID:        userID,
		CartID:        r.CartID,
		Items:         string(itemsJSON),
		Status:        string(r.Status),
		ExpiresAt:     r.ExpiresAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&model).Error, "create reservation")
}

// Get loads one reservation by id.
func (s *GormReservationStore) Get(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	var model ReservationModel
	err := s.db.WithContext(ctx).Where("reservation_id = ?", reservationID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, errors.Wrap(err, "get reservation")
	}
	return toDomainReservation(&model)
}

// UpdateStatus claims the active→status transition with a conditional
// update. Racing commit and release calls cannot both win: the loser sees
// zero rows affected and gets NotActiveError with the status that won.
func (s *GormReservationStore) UpdateStatus(ctx context.Context, reservationID string, status domain.ReservationStatus) error {
	res := s.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("reservation_id = ? AND status = ?", reservationID, string(domain.StatusActive)).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update reservation status")
	}
	if res.RowsAffected == 0 {
		current, _, err := s.Status(ctx, reservationID)
		if err != nil {
			return err
		}
		return &domain.NotActiveError{Status: current}
	}
	return nil
}

// FindExpiredActive lists active reservations whose expiry passed.
func (s *GormReservationStore) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("status = ? AND expires_at < ?", string(domain.StatusActive), now).
		Order("expires_at").
		Limit(limit).
		Pluck("reservation_id", &ids).Error
	return ids, errors.Wrap(err, "find expired reservations")
}

// Status implements port.ReservationStatusLookup for the lock manager's
// steal check without exposing the full record.
func (s *GormReservationStore) Status(ctx context.Context, reservationID string) (domain.ReservationStatus, time.Time, error) {
	var model ReservationModel
	err := s.db.WithContext(ctx).
		Select("status", "expires_at").
		Where("reservation_id = ?", reservationID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, domain.ErrReservationNotFound
		}
		return "", time.Time{}, errors.Wrap(err, "reservation status lookup")
	}
	return domain.ReservationStatus(model.Status), model.ExpiresAt, nil
}

func toDomainReservation(model *ReservationModel) (*domain.Reservation, error) {
	var items []domain.ReservationItem
	if err := json.Unmarshal([]byte(model.Items), &items); err != nil {
		return nil, errors.Wrap(err, "unmarshal reservation items")
	}
	userID := ""
	if model.UserID != nil {
		userID = *model.UserID
	}
	return &domain.Reservation{
		ID:        model.ReservationID,
		UserID:    userID,
		CartID:    model.CartID,
		Items:     items,
		Status:    domain.ReservationStatus(model.Status),
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}
