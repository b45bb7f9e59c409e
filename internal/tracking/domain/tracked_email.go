package domain

import (
	"fmt"
	"time"
)

// EmailType is the lifecycle stage a job-related email was classified into.
type EmailType string

const (
	EmailTypeApplicationReceived EmailType = "APPLICATION_RECEIVED"
	EmailTypeInterview           EmailType = "INTERVIEW"
	EmailTypeOffer               EmailType = "OFFER"
	EmailTypeRejection           EmailType = "REJECTION"
	EmailTypeUpdate              EmailType = "UPDATE"
	EmailTypeOther               EmailType = "OTHER"
)

// UnknownCompany is stored when no organization could be extracted from the sender.
const UnknownCompany = "Unknown Company"

var emailTypes = map[EmailType]struct{}{
	EmailTypeApplicationReceived: {},
	EmailTypeInterview:           {},
	EmailTypeOffer:               {},
	EmailTypeRejection:           {},
	EmailTypeUpdate:              {},
	EmailTypeOther:               {},
}

// ParseEmailType converts s into an EmailType or returns an error if unknown.
func ParseEmailType(s string) (EmailType, error) {
	t := EmailType(s)
	if _, ok := emailTypes[t]; !ok {
		return "", fmt.Errorf("unknown email type %q", s)
	}
	return t, nil
}

// TrackedEmail is a classified copy of one inbound message, unique per
// (UserID, ProviderMessageID).
type TrackedEmail struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	UserID            string    `json:"userId" gorm:"not null;uniqueIndex:idx_tracked_user_message;index:idx_tracked_user_received"`
	ProviderMessageID string    `json:"gmailMessageId" gorm:"column:gmail_message_id;not null;uniqueIndex:idx_tracked_user_message"`
	Subject           string    `json:"subject"`
	Sender            string    `json:"from" gorm:"column:from_address"`
	Snippet           string    `json:"snippet" gorm:"type:text"`
	ClassifiedType    EmailType `json:"classifiedType" gorm:"type:varchar(32);not null;index"`
	CompanyName       string    `json:"companyName"`
	ReceivedAt        time.Time `json:"receivedAt" gorm:"not null;index:idx_tracked_user_received"`
	IsRead            bool      `json:"isRead" gorm:"not null;default:false"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (TrackedEmail) TableName() string {
	return "tracked_emails"
}

// TrackedEmailFilter narrows a paginated tracked-email listing.
type TrackedEmailFilter struct {
	Type   *EmailType
	Offset int
	Limit  int
}

// InboundMessage is a provider message normalized for classification.
type InboundMessage struct {
	ID      string
	Subject string
	From    string
	Date    time.Time
	Snippet string
	Body    string
}
