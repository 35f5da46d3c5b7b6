package store

import (
	"errors"
	"fmt"
	"time"

	"leadintake-service/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrDealNotFound is returned when the referenced deal id does not exist.
	ErrDealNotFound = errors.New("deal not found")
	// ErrAlreadyConfigured is returned when a promote is attempted on a deal
	// that has already left the placeholder stage.
	ErrAlreadyConfigured = errors.New("deal has already been fully configured")
)

// CategorySpec carries the per-category fields of an intake submission.
type CategorySpec struct {
	Name              string
	EventDate         *time.Time
	Venue             string
	Budget            decimal.NullDecimal
	ExpectedGathering *int
}

// DealStore is the authoritative local ledger of deals.
type DealStore struct {
	db *gorm.DB
}

func NewDealStore(db *gorm.DB) *DealStore {
	return &DealStore{db: db}
}

// dealValue derives the monetary value column: the budget when present,
// otherwise zero.
func dealValue(budget decimal.NullDecimal) decimal.Decimal {
	if budget.Valid {
		return budget.Decimal
	}
	return decimal.Zero
}

// CreateMany persists one configured deal per category, in input order.
// Duplicate categories within one call are permitted; the business model
// treats each category as an independent deal.
func (s *DealStore) CreateMany(name, contactNumber string, contactID *uint, specs []CategorySpec) ([]model.Deal, error) {
	deals := make([]model.Deal, 0, len(specs))
	for _, spec := range specs {
		deal := model.Deal{
			UserName:          name,
			ContactNumber:     contactNumber,
			Category:          spec.Name,
			Stage:             model.StageConfigured,
			EventDate:         spec.EventDate,
			Venue:             spec.Venue,
			Budget:            spec.Budget,
			Value:             dealValue(spec.Budget),
			ExpectedGathering: spec.ExpectedGathering,
			ContactID:         contactID,
		}
		if err := s.db.Create(&deal).Error; err != nil {
			return nil, fmt.Errorf("failed to create deal for category %q: %w", spec.Name, err)
		}
		deals = append(deals, deal)
	}
	return deals, nil
}

// InitializeOrTouch returns the first existing deal for the contact number
// after refreshing its updated_at timestamp, or creates a new placeholder
// deal when none exists. Repeated calls with the same number converge on the
// same record instead of duplicating state.
func (s *DealStore) InitializeOrTouch(contactNumber string, contactID *uint) (*model.Deal, bool, error) {
	var existing []model.Deal
	if err := s.db.Where("contact_number = ?", contactNumber).Order("id").Find(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("failed to look up deals for contact number: %w", err)
	}

	if len(existing) > 0 {
		deal := existing[0]
		now := time.Now()
		if err := s.db.Model(&deal).Update("updated_at", now).Error; err != nil {
			return nil, false, fmt.Errorf("failed to touch deal %d: %w", deal.ID, err)
		}
		deal.UpdatedAt = now
		return &deal, true, nil
	}

	deal := model.Deal{
		UserName:      model.PlaceholderName,
		ContactNumber: contactNumber,
		Category:      model.PlaceholderName,
		Stage:         model.StagePlaceholder,
		Value:         decimal.Zero,
		ContactID:     contactID,
	}
	if err := s.db.Create(&deal).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create placeholder deal: %w", err)
	}
	return &deal, false, nil
}

// Configure promotes a placeholder deal in place with real details. The
// identifier and any already-assigned Pipedrive deal id are preserved.
func (s *DealStore) Configure(id uint, name string, spec CategorySpec) (*model.Deal, error) {
	var deal model.Deal
	if err := s.db.First(&deal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to load deal %d: %w", id, err)
	}

	if deal.Stage != model.StagePlaceholder {
		return nil, ErrAlreadyConfigured
	}

	deal.UserName = name
	deal.Category = spec.Name
	deal.EventDate = spec.EventDate
	deal.Venue = spec.Venue
	deal.Budget = spec.Budget
	deal.Value = dealValue(spec.Budget)
	deal.ExpectedGathering = spec.ExpectedGathering
	deal.Stage = model.StageConfigured

	if err := s.db.Save(&deal).Error; err != nil {
		return nil, fmt.Errorf("failed to configure deal %d: %w", id, err)
	}
	return &deal, nil
}

// Update replaces a deal's fields unconditionally from request data. A plain
// update always leaves the record configured, matching what the old
// sentinel-based inference reported once real values were written.
func (s *DealStore) Update(id uint, name, contactNumber string, spec CategorySpec) (*model.Deal, error) {
	var deal model.Deal
	if err := s.db.First(&deal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to load deal %d: %w", id, err)
	}

	deal.UserName = name
	deal.ContactNumber = contactNumber
	deal.Category = spec.Name
	deal.EventDate = spec.EventDate
	deal.Venue = spec.Venue
	deal.Budget = spec.Budget
	deal.Value = dealValue(spec.Budget)
	deal.ExpectedGathering = spec.ExpectedGathering
	deal.Stage = model.StageConfigured

	if err := s.db.Save(&deal).Error; err != nil {
		return nil, fmt.Errorf("failed to update deal %d: %w", id, err)
	}
	return &deal, nil
}

// SetRemoteDealID records the Pipedrive deal id. An empty id is ignored so an
// assigned id is never cleared.
func (s *DealStore) SetRemoteDealID(id uint, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	if err := s.db.Model(&model.Deal{}).Where("id = ?", id).Update("pipedrive_deal_id", remoteID).Error; err != nil {
		return fmt.Errorf("failed to set pipedrive deal id on deal %d: %w", id, err)
	}
	return nil
}

// SetContactID links a deal to its resolved contact record.
func (s *DealStore) SetContactID(id, contactID uint) error {
	if err := s.db.Model(&model.Deal{}).Where("id = ?", id).Update("contact_id", contactID).Error; err != nil {
		return fmt.Errorf("failed to set contact id on deal %d: %w", id, err)
	}
	return nil
}

// Get returns the deal with the given id.
func (s *DealStore) Get(id uint) (*model.Deal, error) {
	var deal model.Deal
	if err := s.db.First(&deal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to load deal %d: %w", id, err)
	}
	return &deal, nil
}

// All returns every deal, oldest first.
func (s *DealStore) All() ([]model.Deal, error) {
	var deals []model.Deal
	if err := s.db.Order("id").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, nil
}

// ByContactNumber returns all deals for a contact number, oldest first.
func (s *DealStore) ByContactNumber(contactNumber string) ([]model.Deal, error) {
	var deals []model.Deal
	if err := s.db.Where("contact_number = ?", contactNumber).Order("id").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals by contact number: %w", err)
	}
	return deals, nil
}

// ByUserName returns all deals for a user name, oldest first.
func (s *DealStore) ByUserName(name string) ([]model.Deal, error) {
	var deals []model.Deal
	if err := s.db.Where("name = ?", name).Order("id").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals by user name: %w", err)
	}
	return deals, nil
}

// ByCategory returns all deals in a category, oldest first.
func (s *DealStore) ByCategory(category string) ([]model.Deal, error) {
	var deals []model.Deal
	if err := s.db.Where("category = ?", category).Order("id").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals by category: %w", err)
	}
	return deals, nil
}

// Delete removes a single deal outright. It reports whether a record existed.
func (s *DealStore) Delete(id uint) (bool, error) {
	result := s.db.Delete(&model.Deal{}, id)
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete deal %d: %w", id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteByUserName removes every deal for a user and returns the count.
func (s *DealStore) DeleteByUserName(name string) (int64, error) {
	result := s.db.Where("name = ?", name).Delete(&model.Deal{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete deals for user %q: %w", name, result.Error)
	}
	return result.RowsAffected, nil
}
