package repository

import (
	"context"

	"mailtrack-backend/internal/tracking/domain"
)

// TrackedEmailRepository persists classified emails, one row per
// (user, provider message id).
type TrackedEmailRepository interface {
	// Upsert inserts the email or, if the message is already tracked,
	// rewrites its display and classification fields. ReceivedAt and IsRead
	// are never overwritten.
	Upsert(ctx context.Context, email *domain.TrackedEmail) error
	// List returns a page of the user's emails, newest received first, and the total count.
	List(ctx context.Context, userID string, filter domain.TrackedEmailFilter) ([]*domain.TrackedEmail, int64, error)
	FindByID(ctx context.Context, userID, id string) (*domain.TrackedEmail, error)
	SetRead(ctx context.Context, userID, id string, read bool) error
}
