// Package domain holds the email-tracking entities and the forward-only
// application status progression applied by reconciliation.
//
// Progression:
//
//	SAVED ──► APPLIED ──► SCREENING ──► INTERVIEWING ──► OFFER
//	  │          │            │              │             │
//	  └──────────┴────────────┴──────────────┴─────────────┴──► REJECTED
//
// REJECTED and WITHDRAWN sit outside the ordering. WITHDRAWN is never
// overwritten.
package domain

import "fmt"

// ApplicationStatus mirrors the application status enum of the application store.
type ApplicationStatus string

const (
	StatusSaved        ApplicationStatus = "SAVED"
	StatusApplied      ApplicationStatus = "APPLIED"
	StatusScreening    ApplicationStatus = "SCREENING"
	StatusInterviewing ApplicationStatus = "INTERVIEWING"
	StatusOffer        ApplicationStatus = "OFFER"
	StatusRejected     ApplicationStatus = "REJECTED"
	StatusWithdrawn    ApplicationStatus = "WITHDRAWN"
)

var progression = map[ApplicationStatus]int{
	StatusSaved:        0,
	StatusApplied:      1,
	StatusScreening:    2,
	StatusInterviewing: 3,
	StatusOffer:        4,
}

var targetByEmailType = map[EmailType]ApplicationStatus{
	EmailTypeApplicationReceived: StatusApplied,
	EmailTypeInterview:           StatusInterviewing,
	EmailTypeOffer:               StatusOffer,
	EmailTypeRejection:           StatusRejected,
}

// ParseApplicationStatus converts a raw string to an ApplicationStatus.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	st := ApplicationStatus(s)
	if _, ok := progression[st]; ok || st == StatusRejected || st == StatusWithdrawn {
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// Rank returns the position of s in the ordered progression. ok is false for
// REJECTED, WITHDRAWN and unknown values.
func (s ApplicationStatus) Rank() (rank int, ok bool) {
	rank, ok = progression[s]
	return rank, ok
}

// TargetStatus returns the status implied by an email classification.
// UPDATE and OTHER imply nothing.
func TargetStatus(t EmailType) (ApplicationStatus, bool) {
	st, ok := targetByEmailType[t]
	return st, ok
}

// CanAdvance reports whether an automatic move from current to target keeps
// the progression forward-only. Re-applying the current status is not a move.
func CanAdvance(current, target ApplicationStatus) bool {
	if current == target || current == StatusWithdrawn {
		return false
	}
	if target == StatusRejected {
		return true
	}
	from, ok := current.Rank()
	if !ok {
		return false
	}
	to, ok := target.Rank()
	if !ok {
		return false
	}
	return to > from
}
