package store

import (
	"errors"
	"fmt"

	"leadintake-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactStore owns persistence of the deduplicated contact records.
type ContactStore struct {
	db *gorm.DB
}

func NewContactStore(db *gorm.DB) *ContactStore {
	return &ContactStore{db: db}
}

// FindByNumber returns the non-deleted contact for a phone number, or nil
// when none exists.
func (s *ContactStore) FindByNumber(contactNumber string) (*model.Contact, error) {
	var contact model.Contact
	err := s.db.Where("contact_number = ?", contactNumber).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up contact by number: %w", err)
	}
	return &contact, nil
}

// FindByID returns the contact with the given id, or nil when none exists.
func (s *ContactStore) FindByID(id uint) (*model.Contact, error) {
	var contact model.Contact
	err := s.db.First(&contact, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load contact %d: %w", id, err)
	}
	return &contact, nil
}

// GetOrCreate inserts the contact, relying on the unique index on
// contact_number to arbitrate races: when a concurrent request wins the
// insert, the conflict is treated as success and the winner's row is
// returned. The bool reports whether this call created the row.
func (s *ContactStore) GetOrCreate(contact *model.Contact) (*model.Contact, bool, error) {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contact_number"}},
		DoNothing: true,
	}).Create(contact)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create contact: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		existing, err := s.FindByNumber(contact.ContactNumber)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("contact insert conflicted but no row found for number %q", contact.ContactNumber)
		}
		return existing, false, nil
	}
	return contact, true, nil
}

// UpdateName renames the contact locally.
func (s *ContactStore) UpdateName(contact *model.Contact, name string) error {
	contact.ContactName = name
	if err := s.db.Save(contact).Error; err != nil {
		return fmt.Errorf("failed to rename contact %d: %w", contact.ID, err)
	}
	return nil
}

// SetRemoteID records the Pipedrive person id on a contact that was created
// while the CRM was unreachable.
func (s *ContactStore) SetRemoteID(contact *model.Contact, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	contact.PipedriveContactID = remoteID
	if err := s.db.Model(contact).Update("pipedrive_contact_id", remoteID).Error; err != nil {
		return fmt.Errorf("failed to set pipedrive contact id on contact %d: %w", contact.ID, err)
	}
	return nil
}
