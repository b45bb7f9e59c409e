package repository

import (
	"context"
	"time"

	"mailtrack-backend/internal/tracking/domain"
)

// ApplicationRepository reads and advances applications owned by the
// application service.
type ApplicationRepository interface {
	// ListByUser returns the user's applications with their job, most
	// recently updated first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Application, error)
	// AdvanceStatus moves app to status and replaces its notes, provided the
	// stored status still equals app.Status. Returns domain.ErrStaleApplication otherwise.
	AdvanceStatus(ctx context.Context, app *domain.Application, status domain.ApplicationStatus, notes string, appliedAt *time.Time) error
}
