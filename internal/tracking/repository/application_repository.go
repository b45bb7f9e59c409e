package repository

import (
	"context"
	"time"

	"mailtrack-backend/internal/tracking/domain"

	"gorm.io/gorm"
)

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{
		db: db,
	}
}

func (r *applicationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Application, error) {
	var apps []*domain.Application
	err := r.db.WithContext(ctx).
		Preload("Job").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *applicationRepository) AdvanceStatus(ctx context.Context, app *domain.Application, status domain.ApplicationStatus, notes string, appliedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"notes":      notes,
		"updated_at": time.Now().UTC(),
	}
	if appliedAt != nil {
		updates["applied_at"] = *appliedAt
	}

	result := r.db.WithContext(ctx).Model(&domain.Application{}).
		Where("id = ? AND user_id = ? AND status = ?", app.ID, app.UserID, app.Status).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStaleApplication
	}
	return nil
}
