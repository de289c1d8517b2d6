package repository

import (
	"context"

	"tiketi/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CheckoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

// Save inserts the attempt or, if its session is already stored, updates
// the fields that change as the session progresses.
func (r *CheckoutRepository) Save(ctx context.Context, a *models.CheckoutAttempt) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"correlation_id", "state", "error_kind", "message", "finished_at", "updated_at",
		}),
	}).Create(a).Error
}

func (r *CheckoutRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.CheckoutAttempt, error) {
	var a models.CheckoutAttempt
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByUser returns the user's most recent attempts, newest first.
func (r *CheckoutRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.CheckoutAttempt, error) {
	var list []models.CheckoutAttempt
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("started_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

// ListRecent returns the most recent attempts across all users, optionally
// filtered by final state.
func (r *CheckoutRepository) ListRecent(ctx context.Context, state string, limit int) ([]models.CheckoutAttempt, error) {
	q := r.db.WithContext(ctx).Model(&models.CheckoutAttempt{})
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var list []models.CheckoutAttempt
	err := q.Order("started_at DESC").Limit(limit).Find(&list).Error
	return list, err
}
