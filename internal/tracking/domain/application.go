package domain

import "time"

// Job is the listing an application was made to. Owned by the application service.
type Job struct {
	ID      string `json:"id" gorm:"primaryKey"`
	Title   string `json:"title"`
	Company string `json:"company"`
}

func (Job) TableName() string {
	return "job_listings"
}

// Application is a user's application record. Owned by the application
// service; this service only advances its status.
type Application struct {
	ID        string            `json:"id" gorm:"primaryKey"`
	UserID    string            `json:"userId" gorm:"index;not null"`
	JobID     string            `json:"jobId" gorm:"not null"`
	Status    ApplicationStatus `json:"status" gorm:"type:varchar(32);not null"`
	Notes     *string           `json:"notes" gorm:"type:text"`
	AppliedAt *time.Time        `json:"appliedAt"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Job       Job               `json:"job" gorm:"foreignKey:JobID"`
}

func (Application) TableName() string {
	return "applications"
}
