package identity

import (
	"leadintake-service/internal/model"
	"leadintake-service/internal/store"
	"leadintake-service/prometheus"

	"go.uber.org/zap"
)

// PersonDirectory is the slice of the CRM gateway the resolver needs.
type PersonDirectory interface {
	CreatePerson(name, contactNumber string) (string, error)
	UpdatePersonName(remotePersonID, name string) error
}

// Resolver owns the resolve-or-create rule for contacts: at most one
// non-deleted contact per phone number, created exactly once, with local
// availability never depending on CRM reachability.
type Resolver struct {
	contacts *store.ContactStore
	crm      PersonDirectory
	log      *zap.Logger
}

func NewResolver(contacts *store.ContactStore, crm PersonDirectory, log *zap.Logger) *Resolver {
	return &Resolver{contacts: contacts, crm: crm, log: log}
}

// Resolve returns the existing contact for the phone number unchanged, or
// creates one with the given name. When syncRemote is set a Pipedrive person
// create is attempted first; its failure leaves the contact without a remote
// id but never blocks local creation.
func (r *Resolver) Resolve(name, contactNumber string, syncRemote bool) (*model.Contact, error) {
	existing, err := r.contacts.FindByNumber(contactNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	contact := &model.Contact{
		ContactName:   name,
		ContactNumber: contactNumber,
	}

	if syncRemote {
		remoteID, err := r.crm.CreatePerson(name, contactNumber)
		prometheus.RecordCrmSync("create_person", err)
		if err != nil {
			r.log.Error("Failed to create person in Pipedrive, keeping contact local",
				zap.String("contact_number", contactNumber),
				zap.Error(err))
		} else {
			contact.PipedriveContactID = remoteID
		}
	}

	resolved, created, err := r.contacts.GetOrCreate(contact)
	if err != nil {
		return nil, err
	}
	if !created {
		// A concurrent request won the insert; its row is the contact.
		r.log.Info("Contact already existed, reusing it",
			zap.Uint("contact_id", resolved.ID),
			zap.String("contact_number", contactNumber))
	}
	return resolved, nil
}

// Rename updates the contact's display name. A no-op when the name is
// unchanged; the remote rename is best-effort and only logged on failure.
func (r *Resolver) Rename(contact *model.Contact, newName string) error {
	if contact.ContactName == newName {
		return nil
	}

	if err := r.contacts.UpdateName(contact, newName); err != nil {
		return err
	}

	if contact.PipedriveContactID == "" {
		r.log.Warn("Cannot rename person in Pipedrive: contact has no remote id",
			zap.Uint("contact_id", contact.ID))
		return nil
	}

	err := r.crm.UpdatePersonName(contact.PipedriveContactID, newName)
	prometheus.RecordCrmSync("update_person", err)
	if err != nil {
		r.log.Error("Failed to rename person in Pipedrive",
			zap.String("pipedrive_contact_id", contact.PipedriveContactID),
			zap.Error(err))
	}
	return nil
}

// EnsureRemote backfills the Pipedrive person id on a contact that was
// created while the CRM was unreachable.
func (r *Resolver) EnsureRemote(contact *model.Contact) error {
	if contact.PipedriveContactID != "" {
		return nil
	}
	remoteID, err := r.crm.CreatePerson(contact.ContactName, contact.ContactNumber)
	prometheus.RecordCrmSync("create_person", err)
	if err != nil {
		return err
	}
	return r.contacts.SetRemoteID(contact, remoteID)
}
