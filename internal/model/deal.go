package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderName is written into the name and category of a deal created by
// the init endpoint before the client has supplied real details. Lifecycle
// guards read the Stage column, not this string; it exists so reports and the
// CRM mirror carry a recognizable marker.
const PlaceholderName = "PENDING"

// Deal lifecycle stages. A deal moves from placeholder to configured exactly
// once and never back.
const (
	StagePlaceholder = "placeholder"
	StageConfigured  = "configured"
)

// Deal represents one requested service category for one client.
type Deal struct {
	ID                uint                `json:"id" gorm:"primaryKey"`
	UserName          string              `json:"name" gorm:"column:name;type:varchar(100);index;not null"`
	ContactNumber     string              `json:"contact_number" gorm:"type:varchar(20);index;not null"`
	Category          string              `json:"category" gorm:"type:varchar(50);index;not null"`
	Stage             string              `json:"stage" gorm:"type:varchar(20);not null;default:placeholder"`
	EventDate         *time.Time          `json:"event_date,omitempty" gorm:"type:date"`
	Venue             string              `json:"venue,omitempty" gorm:"type:varchar(255)"`
	Budget            decimal.NullDecimal `json:"budget" gorm:"type:decimal(10,2)"`
	Value             decimal.Decimal     `json:"value" gorm:"type:decimal(12,2);not null"`
	ExpectedGathering *int                `json:"expected_gathering,omitempty"`
	PipedriveDealID   string              `json:"pipedrive_deal_id,omitempty" gorm:"type:varchar(100)"`
	ContactID         *uint               `json:"contact_id,omitempty" gorm:"index"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}
