package usecase

import (
	"context"

	"mailtrack-backend/internal/tracking/domain"
	"mailtrack-backend/internal/tracking/dto"
)

// TrackingUsecase defines the email tracking use cases
type TrackingUsecase interface {
	// AuthURL returns the provider consent URL with userID encoded in the state.
	AuthURL(userID string) (string, error)
	// ResolveState returns the user id carried by a callback state parameter.
	ResolveState(state string) (string, error)
	// CompleteAuthorization exchanges code and stores the Connection. Nothing is
	// written unless both the exchange and the identity lookup succeed.
	CompleteAuthorization(ctx context.Context, code, userID string) error
	// ClientFor returns a mailbox session, or nil without error when the user
	// has no active connection.
	ClientFor(ctx context.Context, userID string) (domain.MailSession, error)
	ConnectionStatus(ctx context.Context, userID string) (*dto.ConnectionStatus, error)
	Disconnect(ctx context.Context, userID string) error
	ListTrackedEmails(ctx context.Context, userID string, query dto.TrackedEmailQuery) (*dto.TrackedEmailPage, error)
	GetTrackedEmail(ctx context.Context, userID, id string) (*domain.TrackedEmail, error)
	MarkRead(ctx context.Context, userID, id string, read bool) error
	// SyncEmails runs scan, classify, store and reconcile for one user.
	SyncEmails(ctx context.Context, userID string) (*dto.SyncResult, error)
}

// MailProvider is the OAuth and mailbox side of the mail provider.
type MailProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.TokenSet, error)
	MailboxAddress(ctx context.Context, tokens domain.TokenSet) (string, error)
	NewSession(ctx context.Context, tokens domain.TokenSet) (domain.MailSession, error)
}

// StateCodec signs and verifies the OAuth state parameter.
type StateCodec interface {
	SignState(userID string) (string, error)
	ParseState(state string) (string, error)
}
