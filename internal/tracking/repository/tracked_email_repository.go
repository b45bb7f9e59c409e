package repository

import (
	"context"
	"errors"
	"time"

	"mailtrack-backend/internal/tracking/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type trackedEmailRepository struct {
	db *gorm.DB
}

func NewTrackedEmailRepository(db *gorm.DB) TrackedEmailRepository {
	return &trackedEmailRepository{
		db: db,
	}
}

func (r *trackedEmailRepository) Upsert(ctx context.Context, email *domain.TrackedEmail) error {
	now := time.Now().UTC()
	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	email.CreatedAt = now
	email.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "gmail_message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subject",
			"from_address",
			"snippet",
			"classified_type",
			"company_name",
			"updated_at",
		}),
	}).Create(email).Error
	if err != nil {
		return err
	}

	// On conflict the stored row keeps its own id and user-owned fields.
	var stored domain.TrackedEmail
	err = r.db.WithContext(ctx).
		Select("id", "received_at", "is_read", "created_at").
		Where("user_id = ? AND gmail_message_id = ?", email.UserID, email.ProviderMessageID).
		First(&stored).Error
	if err != nil {
		return err
	}
	email.ID = stored.ID
	email.ReceivedAt = stored.ReceivedAt
	email.IsRead = stored.IsRead
	email.CreatedAt = stored.CreatedAt
	return nil
}

func (r *trackedEmailRepository) List(ctx context.Context, userID string, filter domain.TrackedEmailFilter) ([]*domain.TrackedEmail, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.TrackedEmail{}).Where("user_id = ?", userID)
	if filter.Type != nil {
		query = query.Where("classified_type = ?", *filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var emails []*domain.TrackedEmail
	err := query.
		Order("received_at DESC").
		Order("id").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&emails).Error
	if err != nil {
		return nil, 0, err
	}
	return emails, total, nil
}

func (r *trackedEmailRepository) FindByID(ctx context.Context, userID, id string) (*domain.TrackedEmail, error) {
	var email domain.TrackedEmail
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &email, nil
}

func (r *trackedEmailRepository) SetRead(ctx context.Context, userID, id string, read bool) error {
	result := r.db.WithContext(ctx).Model(&domain.TrackedEmail{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_read": read, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrTrackedEmailNotFound
	}
	return nil
}
