package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailtrack-backend/internal/tracking/domain"
	"mailtrack-backend/internal/tracking/repository"
	"mailtrack-backend/pkg/events"
	"mailtrack-backend/pkg/fuzzy"
	"mailtrack-backend/pkg/logger"

	"go.uber.org/zap"
)

// Reconciler advances application statuses from classified emails. It is
// best-effort: every failure is logged and swallowed.
type Reconciler struct {
	apps      repository.ApplicationRepository
	publisher events.Publisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewReconciler(apps repository.ApplicationRepository, publisher events.Publisher, log *zap.Logger) *Reconciler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Reconciler{
		apps:      apps,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.OrNop(log).Named("reconciler"),
	}
}

// Reconcile applies the status implied by emailType to the user's most
// recently updated application whose job company matches company. It
// reports whether an application was moved.
func (r *Reconciler) Reconcile(ctx context.Context, userID, company string, emailType domain.EmailType) bool {
	target, ok := domain.TargetStatus(emailType)
	if !ok {
		return false
	}
	if company == "" || company == domain.UnknownCompany {
		return false
	}

	log := r.logger.With(zap.String("user_id", userID), zap.String("company", company))

	apps, err := r.apps.ListByUser(ctx, userID)
	if err != nil {
		log.Warn("failed to load applications", zap.Error(err))
		return false
	}

	var match *domain.Application
	for _, app := range apps {
		if fuzzy.CompanyMatch(app.Job.Company, company) {
			match = app
			break
		}
	}
	if match == nil {
		log.Debug("no matching application")
		return false
	}
	if _, err := domain.ParseApplicationStatus(string(match.Status)); err != nil {
		log.Warn("skipping application with unknown status", zap.String("application_id", match.ID), zap.Error(err))
		return false
	}
	if !domain.CanAdvance(match.Status, target) {
		return false
	}

	now := r.now().UTC()
	notes := appendAuditNote(match.Notes, now, target,
		fmt.Sprintf("Automatically updated from a %s email from %s.", humanize(emailType), company))

	var appliedAt *time.Time
	if target == domain.StatusApplied && match.AppliedAt == nil {
		appliedAt = &now
	}

	if err := r.apps.AdvanceStatus(ctx, match, target, notes, appliedAt); err != nil {
		log.Warn("failed to advance application",
			zap.String("application_id", match.ID),
			zap.String("from", string(match.Status)),
			zap.String("to", string(target)),
			zap.Error(err))
		return false
	}

	log.Info("application status advanced",
		zap.String("application_id", match.ID),
		zap.String("from", string(match.Status)),
		zap.String("to", string(target)))

	err = r.publisher.Publish(ctx, events.ChannelApplicationAutoUpdated, events.ApplicationAutoUpdated{
		Type:          events.ChannelApplicationAutoUpdated,
		ApplicationID: match.ID,
		UserID:        userID,
		From:          string(match.Status),
		To:            string(target),
		Company:       company,
		Source:        "email",
	})
	if err != nil {
		log.Warn("failed to publish status event", zap.Error(err))
	}
	return true
}

// appendAuditNote adds a timestamped entry after any existing notes,
// separated by a blank line.
func appendAuditNote(existing *string, at time.Time, status domain.ApplicationStatus, message string) string {
	entry := fmt.Sprintf("[%s] Status: %s\n%s", at.Format(time.RFC3339), status, message)
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return entry
	}
	return strings.TrimRight(*existing, "\n") + "\n\n" + entry
}

func humanize(t domain.EmailType) string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}
