package repository

import (
	"context"
	"time"

	"mailtrack-backend/internal/tracking/domain"
)

// ConnectionRepository persists per-user mailbox credentials.
type ConnectionRepository interface {
	FindByUserID(ctx context.Context, userID string) (*domain.Connection, error)
	// FindActive returns every connection with IsActive set, oldest sync first.
	// Tokens are left empty; FindByUserID loads them for a single user.
	FindActive(ctx context.Context) ([]*domain.Connection, error)
	// SaveAuthorization creates or overwrites the connection after a
	// successful grant. It reactivates the row and clears LastSyncAt; an
	// empty refresh token keeps the stored one.
	SaveAuthorization(ctx context.Context, conn *domain.Connection) error
	// UpdateTokens stores a refreshed access token. An empty refresh token
	// keeps the stored one.
	UpdateTokens(ctx context.Context, userID string, tokens domain.TokenSet) error
	Deactivate(ctx context.Context, userID string) error
	TouchLastSync(ctx context.Context, userID string, at time.Time) error
}
