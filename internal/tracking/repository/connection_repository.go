package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailtrack-backend/internal/tracking/domain"
	"mailtrack-backend/pkg/crypto"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type connectionRepository struct {
	db     *gorm.DB
	sealer *crypto.Sealer
}

// NewConnectionRepository returns a gorm-backed ConnectionRepository. Tokens
// are sealed with sealer when it is non-nil.
func NewConnectionRepository(db *gorm.DB, sealer *crypto.Sealer) ConnectionRepository {
	return &connectionRepository{
		db:     db,
		sealer: sealer,
	}
}

func (r *connectionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.open(&conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) FindActive(ctx context.Context) ([]*domain.Connection, error) {
	var conns []*domain.Connection
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "email", "token_expiry", "is_active", "last_sync_at", "created_at", "updated_at").
		Where("is_active = ?", true).
		Order("last_sync_at ASC NULLS FIRST").
		Order("created_at ASC").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *connectionRepository) SaveAuthorization(ctx context.Context, conn *domain.Connection) error {
	access, err := r.sealer.Seal(conn.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.sealer.Seal(conn.RefreshToken)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	row := domain.Connection{
		ID:             uuid.New().String(),
		UserID:         conn.UserID,
		MailboxAddress: conn.MailboxAddress,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiry:    conn.TokenExpiry,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	updates := map[string]interface{}{
		"email":        row.MailboxAddress,
		"access_token": row.AccessToken,
		"token_expiry": row.TokenExpiry,
		"is_active":    true,
		"last_sync_at": gorm.Expr("NULL"),
		"updated_at":   now,
	}
	if row.RefreshToken != "" {
		updates["refresh_token"] = row.RefreshToken
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&row).Error
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, userID string, tokens domain.TokenSet) error {
	access, err := r.sealer.Seal(tokens.AccessToken)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"access_token": access,
		"token_expiry": tokens.Expiry,
		"updated_at":   time.Now().UTC(),
	}
	if tokens.RefreshToken != "" {
		refresh, err := r.sealer.Seal(tokens.RefreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token"] = refresh
	}

	result := r.db.WithContext(ctx).Model(&domain.Connection{}).Where("user_id = ?", userID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *connectionRepository) Deactivate(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).Model(&domain.Connection{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *connectionRepository) TouchLastSync(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Connection{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"last_sync_at": at.UTC(), "updated_at": time.Now().UTC()}).Error
}

func (r *connectionRepository) open(conn *domain.Connection) error {
	var err error
	if conn.AccessToken, err = r.sealer.Open(conn.AccessToken); err != nil {
		return fmt.Errorf("open access token: %w", err)
	}
	if conn.RefreshToken, err = r.sealer.Open(conn.RefreshToken); err != nil {
		return fmt.Errorf("open refresh token: %w", err)
	}
	return nil
}
