package domain

import "errors"

var (
	ErrConnectionNotFound   = errors.New("email connection not found")
	ErrTrackedEmailNotFound = errors.New("tracked email not found")
	ErrInvalidState         = errors.New("invalid oauth state")
	ErrMissingCode          = errors.New("missing authorization code")
	ErrInvalidFilter        = errors.New("invalid tracked email filter")
	ErrStaleApplication     = errors.New("application changed concurrently")
)
