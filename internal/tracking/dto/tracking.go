package dto

import (
	"time"

	"mailtrack-backend/internal/tracking/domain"
)

type AuthURLResponse struct {
	URL string `json:"url"`
}

// ConnectionStatus is the public projection of a Connection. Tokens are never
// exposed. Without a connection only Connected is set.
type ConnectionStatus struct {
	Connected  bool       `json:"connected"`
	Email      string     `json:"email,omitempty"`
	IsActive   *bool      `json:"isActive,omitempty"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

type TrackedEmailQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Status string `form:"status"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type TrackedEmailPage struct {
	Emails     []*domain.TrackedEmail `json:"emails"`
	Pagination Pagination             `json:"pagination"`
}

type MarkReadRequest struct {
	IsRead *bool `json:"isRead"`
}

// SyncResult summarizes one run of the sync pipeline for a user.
type SyncResult struct {
	Scanned    int `json:"synced"`
	Stored     int `json:"stored"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`
}

type SyncResponse struct {
	Message    string `json:"message"`
	Synced     int    `json:"synced"`
	Stored     int    `json:"stored"`
	Reconciled int    `json:"reconciled"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
