package domain

import (
	"context"
	"time"
)

// Connection stores a user's mailbox OAuth credentials and sync state.
// Disconnecting flips IsActive instead of deleting the row.
type Connection struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	UserID         string     `json:"userId" gorm:"uniqueIndex;not null"`
	MailboxAddress string     `json:"email" gorm:"column:email;not null"`
	AccessToken    string     `json:"-" gorm:"type:text;not null"`
	RefreshToken   string     `json:"-" gorm:"type:text"`
	TokenExpiry    *time.Time `json:"tokenExpiry"`
	IsActive       bool       `json:"isActive" gorm:"not null"`
	LastSyncAt     *time.Time `json:"lastSyncAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (Connection) TableName() string {
	return "email_connections"
}

// Tokens returns the credential part of the connection.
func (c *Connection) Tokens() TokenSet {
	return TokenSet{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.TokenExpiry,
	}
}

// TokenSet is an access/refresh token pair as issued or refreshed by the provider.
// A nil Expiry means the access token must be treated as expired.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       *time.Time
}

// MailSession is an authenticated mailbox client for one user. RefreshedToken
// returns the token obtained by a refresh during the session, or nil; the
// caller owns persisting it.
type MailSession interface {
	ScanJobEmails(ctx context.Context) ([]InboundMessage, error)
	RefreshedToken() *TokenSet
}
