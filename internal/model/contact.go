package model

import (
	"time"

	"gorm.io/gorm"
)

// Contact is the deduplicated identity record for a client phone number.
// The unique index on contact_number is what makes concurrent resolves for a
// brand-new number converge on a single row. Contacts are never deleted by
// this service; the soft-delete column is read but not set here.
type Contact struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	ContactName        string         `json:"contact_name" gorm:"type:varchar(255)"`
	ContactNumber      string         `json:"contact_number" gorm:"type:varchar(20);uniqueIndex:ux_contacts_contact_number;not null"`
	PipedriveContactID string         `json:"pipedrive_contact_id,omitempty" gorm:"type:varchar(100)"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`
}
