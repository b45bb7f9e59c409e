package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"mailtrack-backend/internal/tracking/domain"
	"mailtrack-backend/internal/tracking/dto"
	"mailtrack-backend/internal/tracking/repository"
	"mailtrack-backend/pkg/classifier"
	"mailtrack-backend/pkg/events"
	"mailtrack-backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type trackingUsecase struct {
	connections repository.ConnectionRepository
	emails      repository.TrackedEmailRepository
	provider    MailProvider
	state       StateCodec
	reconciler  *Reconciler
	publisher   events.Publisher
	now         func() time.Time
	logger      *zap.Logger
}

// NewTrackingUsecase creates a new tracking usecase instance
func NewTrackingUsecase(
	connections repository.ConnectionRepository,
	emails repository.TrackedEmailRepository,
	provider MailProvider,
	state StateCodec,
	reconciler *Reconciler,
	publisher events.Publisher,
	log *zap.Logger,
) TrackingUsecase {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &trackingUsecase{
		connections: connections,
		emails:      emails,
		provider:    provider,
		state:       state,
		reconciler:  reconciler,
		publisher:   publisher,
		now:         time.Now,
		logger:      logger.OrNop(log).Named("sync"),
	}
}

func (u *trackingUsecase) AuthURL(userID string) (string, error) {
	state, err := u.state.SignState(userID)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return u.provider.AuthCodeURL(state), nil
}

func (u *trackingUsecase) ResolveState(state string) (string, error) {
	if state == "" {
		return "", domain.ErrInvalidState
	}
	userID, err := u.state.ParseState(state)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	return userID, nil
}

func (u *trackingUsecase) CompleteAuthorization(ctx context.Context, code, userID string) error {
	if code == "" {
		return domain.ErrMissingCode
	}

	tokens, err := u.provider.Exchange(ctx, code)
	if err != nil {
		return err
	}
	address, err := u.provider.MailboxAddress(ctx, *tokens)
	if err != nil {
		return err
	}

	err = u.connections.SaveAuthorization(ctx, &domain.Connection{
		UserID:         userID,
		MailboxAddress: address,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiry:    tokens.Expiry,
	})
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}

	u.logger.Info("mailbox connected", zap.String("user_id", userID), zap.String("email", address))
	return nil
}

func (u *trackingUsecase) ClientFor(ctx context.Context, userID string) (domain.MailSession, error) {
	conn, err := u.connections.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil || !conn.IsActive {
		return nil, nil
	}
	return u.provider.NewSession(ctx, conn.Tokens())
}

func (u *trackingUsecase) ConnectionStatus(ctx context.Context, userID string) (*dto.ConnectionStatus, error) {
	conn, err := u.connections.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return &dto.ConnectionStatus{Connected: false}, nil
	}
	createdAt := conn.CreatedAt
	isActive := conn.IsActive
	return &dto.ConnectionStatus{
		Connected:  true,
		Email:      conn.MailboxAddress,
		IsActive:   &isActive,
		LastSyncAt: conn.LastSyncAt,
		CreatedAt:  &createdAt,
	}, nil
}

func (u *trackingUsecase) Disconnect(ctx context.Context, userID string) error {
	if err := u.connections.Deactivate(ctx, userID); err != nil {
		return err
	}
	u.logger.Info("mailbox disconnected", zap.String("user_id", userID))
	return nil
}

func (u *trackingUsecase) ListTrackedEmails(ctx context.Context, userID string, query dto.TrackedEmailQuery) (*dto.TrackedEmailPage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	switch {
	case limit == 0:
		limit = defaultPageLimit
	case limit < 1:
		limit = 1
	case limit > maxPageLimit:
		limit = maxPageLimit
	}
	if maxPage := math.MaxInt32 / limit; page > maxPage {
		page = maxPage
	}

	filter := domain.TrackedEmailFilter{
		Offset: (page - 1) * limit,
		Limit:  limit,
	}
	if query.Status != "" {
		emailType, err := domain.ParseEmailType(query.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFilter, err)
		}
		filter.Type = &emailType
	}

	emails, total, err := u.emails.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []*domain.TrackedEmail{}
	}

	return &dto.TrackedEmailPage{
		Emails: emails,
		Pagination: dto.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

func (u *trackingUsecase) GetTrackedEmail(ctx context.Context, userID, id string) (*domain.TrackedEmail, error) {
	email, err := u.emails.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, domain.ErrTrackedEmailNotFound
	}
	return email, nil
}

func (u *trackingUsecase) MarkRead(ctx context.Context, userID, id string, read bool) error {
	return u.emails.SetRead(ctx, userID, id, read)
}

func (u *trackingUsecase) SyncEmails(ctx context.Context, userID string) (*dto.SyncResult, error) {
	log := u.logger.With(zap.String("user_id", userID))
	result := &dto.SyncResult{}

	session, err := u.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		log.Debug("no active connection, nothing to sync")
		return result, nil
	}

	messages, scanErr := session.ScanJobEmails(ctx)

	// A refresh may have happened before the scan failed; persist it either way.
	if refreshed := session.RefreshedToken(); refreshed != nil {
		if err := u.connections.UpdateTokens(ctx, userID, *refreshed); err != nil {
			log.Error("failed to persist refreshed token", zap.Error(err))
		} else {
			log.Debug("refreshed token persisted")
		}
	}
	if scanErr != nil {
		return nil, fmt.Errorf("scan mailbox: %w", scanErr)
	}

	result.Scanned = len(messages)
	var upsertErr error
	for _, msg := range messages {
		c := classifier.Classify(msg.Subject, msg.Body, msg.From)

		email := &domain.TrackedEmail{
			UserID:            userID,
			ProviderMessageID: msg.ID,
			Subject:           msg.Subject,
			Sender:            msg.From,
			Snippet:           msg.Snippet,
			ClassifiedType:    c.Type,
			CompanyName:       c.Company,
			ReceivedAt:        msg.Date,
		}
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = u.now().UTC()
		}

		if err := u.emails.Upsert(ctx, email); err != nil {
			result.Failed++
			upsertErr = errors.Join(upsertErr, err)
			log.Warn("failed to store tracked email", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		result.Stored++

		if u.reconciler != nil && u.reconciler.Reconcile(ctx, userID, c.Company, c.Type) {
			result.Reconciled++
		}
	}

	if result.Stored == 0 && upsertErr != nil {
		return nil, fmt.Errorf("store tracked emails: %w", upsertErr)
	}

	if err := u.connections.TouchLastSync(ctx, userID, u.now()); err != nil {
		log.Warn("failed to update last sync time", zap.Error(err))
	}

	err = u.publisher.Publish(ctx, events.ChannelEmailSyncCompleted, events.EmailSyncCompleted{
		Type:    events.ChannelEmailSyncCompleted,
		UserID:  userID,
		Scanned: result.Scanned,
		Stored:  result.Stored,
	})
	if err != nil {
		log.Warn("failed to publish sync event", zap.Error(err))
	}

	log.Info("email sync completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("stored", result.Stored),
		zap.Int("reconciled", result.Reconciled),
		zap.Int("failed", result.Failed))
	return result, nil
}
