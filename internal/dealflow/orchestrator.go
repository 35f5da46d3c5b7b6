package dealflow

import (
	"errors"
	"fmt"
	"time"

	"leadintake-service/internal/identity"
	"leadintake-service/internal/model"
	"leadintake-service/internal/store"
	"leadintake-service/pkg/pipedrive"
	"leadintake-service/prometheus"

	"go.uber.org/zap"
)

// ErrNoCategories is returned when an operation that fans out per category is
// called with an empty category list.
var ErrNoCategories = errors.New("at least one category is required")

// DealBook is the slice of the CRM gateway the orchestrator pushes deals
// through. Every call may fail independently; the orchestrator decides which
// failures matter, and none of them ever roll back a committed local write.
type DealBook interface {
	CreateDeal(remotePersonID, title string, value int64) (string, error)
	UpdateDealFields(remoteDealID string, fields pipedrive.DealFields) error
}

// Notifier sends the post-update confirmation message. Failures are swallowed
// at the call site.
type Notifier interface {
	SendDealConfirmation(contactNumber, name string, categories []string, eventDate *time.Time, venue string) error
}

// Orchestrator coordinates the identity resolver, the deal store, the CRM
// gateway and the notification channel across the intake workflow. Local
// state is always the source of truth: every remote call happens after the
// local write it mirrors has committed.
type Orchestrator struct {
	deals    *store.DealStore
	contacts *store.ContactStore
	resolver *identity.Resolver
	crm      DealBook
	notifier Notifier
	log      *zap.Logger
}

func New(deals *store.DealStore, contacts *store.ContactStore, resolver *identity.Resolver, crm DealBook, notifier Notifier, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		deals:    deals,
		contacts: contacts,
		resolver: resolver,
		crm:      crm,
		notifier: notifier,
		log:      log,
	}
}

// CreateDeals fans a single submission out into one configured deal per
// category, all sharing the resolved contact. This is local-first bulk
// intake: no CRM calls happen on this path.
func (o *Orchestrator) CreateDeals(name, contactNumber string, specs []store.CategorySpec) (string, []model.Deal, error) {
	if len(specs) == 0 {
		return "", nil, ErrNoCategories
	}

	contact, err := o.resolver.Resolve(name, contactNumber, false)
	if err != nil {
		return "", nil, err
	}

	deals, err := o.deals.CreateMany(name, contactNumber, &contact.ID, specs)
	if err != nil {
		return "", nil, err
	}

	o.log.Info("Deals created",
		zap.Int("count", len(deals)),
		zap.String("name", name),
		zap.String("contact_number", contactNumber))

	message := fmt.Sprintf("Successfully created %d deal(s) for user %s", len(deals), name)
	return message, deals, nil
}

// InitializeDeal is the first phase of the two-step intake. It is safe to
// retry: repeated calls with the same phone number converge on one contact
// and one deal. Remote failures are logged and never surfaced; the caller
// always gets a deal id.
func (o *Orchestrator) InitializeDeal(contactNumber string) (uint, error) {
	contact, err := o.resolver.Resolve(model.PlaceholderName, contactNumber, true)
	if err != nil {
		return 0, err
	}

	deal, existed, err := o.deals.InitializeOrTouch(contactNumber, &contact.ID)
	if err != nil {
		return 0, err
	}

	if existed {
		o.log.Info("Existing deal re-initialized",
			zap.Uint("deal_id", deal.ID),
			zap.String("contact_number", contactNumber))
		o.backfillRemote(deal, contact)
		return deal.ID, nil
	}

	// Mirror the fresh placeholder into the CRM, best-effort.
	if contact.PipedriveContactID != "" {
		remoteDealID, err := o.crm.CreateDeal(contact.PipedriveContactID, model.PlaceholderName+" Deal", 0)
		prometheus.RecordCrmSync("create_deal", err)
		if err != nil {
			o.log.Error("Failed to create placeholder deal in Pipedrive, deal stays local",
				zap.Uint("deal_id", deal.ID),
				zap.Error(err))
		} else if err := o.deals.SetRemoteDealID(deal.ID, remoteDealID); err != nil {
			o.log.Error("Failed to record pipedrive deal id",
				zap.Uint("deal_id", deal.ID),
				zap.Error(err))
		}
	}

	o.log.Info("Deal initialized",
		zap.Uint("deal_id", deal.ID),
		zap.String("contact_number", contactNumber))
	return deal.ID, nil
}

// backfillRemote repairs placeholder deals created while Pipedrive was down:
// a re-initialization is the natural point to retry the missing remote ids.
// Every step is best-effort.
func (o *Orchestrator) backfillRemote(deal *model.Deal, contact *model.Contact) {
	if deal.ContactID == nil {
		if err := o.deals.SetContactID(deal.ID, contact.ID); err != nil {
			o.log.Error("Failed to link deal to contact", zap.Uint("deal_id", deal.ID), zap.Error(err))
		}
	}

	if deal.PipedriveDealID != "" {
		return
	}

	if contact.PipedriveContactID == "" {
		if err := o.resolver.EnsureRemote(contact); err != nil {
			o.log.Error("Failed to backfill pipedrive person for contact",
				zap.Uint("contact_id", contact.ID),
				zap.Error(err))
			return
		}
	}

	remoteDealID, err := o.crm.CreateDeal(contact.PipedriveContactID, model.PlaceholderName+" Deal", 0)
	prometheus.RecordCrmSync("create_deal", err)
	if err != nil {
		o.log.Error("Failed to backfill pipedrive deal",
			zap.Uint("deal_id", deal.ID),
			zap.Error(err))
		return
	}
	if err := o.deals.SetRemoteDealID(deal.ID, remoteDealID); err != nil {
		o.log.Error("Failed to record backfilled pipedrive deal id",
			zap.Uint("deal_id", deal.ID),
			zap.Error(err))
	}
}

// UpdateDealWithoutContactNumber is the second phase of the two-step intake.
// The original deal is promoted in place with the first category, preserving
// its identifier and any remote deal id; each remaining category becomes a
// new configured deal. CRM sync and the confirmation message are best-effort.
func (o *Orchestrator) UpdateDealWithoutContactNumber(id uint, name string, specs []store.CategorySpec) (*model.Deal, error) {
	if len(specs) == 0 {
		return nil, ErrNoCategories
	}

	deal, err := o.deals.Get(id)
	if err != nil {
		return nil, err
	}
	if deal.Stage != model.StagePlaceholder {
		return nil, store.ErrAlreadyConfigured
	}

	contact, err := o.resolveForUpdate(deal, name)
	if err != nil {
		return nil, err
	}

	first := specs[0]
	promoted, err := o.deals.Configure(id, name, first)
	if err != nil {
		return nil, err
	}
	o.syncDeal(promoted, contact, first, name)

	for _, spec := range specs[1:] {
		created, err := o.deals.CreateMany(name, deal.ContactNumber, contactRef(contact), []store.CategorySpec{spec})
		if err != nil {
			return nil, err
		}
		o.syncDeal(&created[0], contact, spec, name)
	}

	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	err = o.notifier.SendDealConfirmation(deal.ContactNumber, name, names, first.EventDate, first.Venue)
	prometheus.RecordNotification(err)
	if err != nil {
		o.log.Error("Failed to send WhatsApp confirmation",
			zap.String("contact_number", deal.ContactNumber),
			zap.Error(err))
	}

	o.log.Info("Deal configured",
		zap.Uint("deal_id", promoted.ID),
		zap.String("name", name),
		zap.Int("categories", len(specs)))
	return promoted, nil
}

// resolveForUpdate finds the contact behind a placeholder deal, creating one
// when the deal was initialized without a contact link, and renames a
// still-placeholder contact now that the real name is known.
func (o *Orchestrator) resolveForUpdate(deal *model.Deal, name string) (*model.Contact, error) {
	var contact *model.Contact
	var err error

	if deal.ContactID != nil {
		contact, err = o.contacts.FindByID(*deal.ContactID)
		if err != nil {
			return nil, err
		}
	}

	if contact == nil {
		contact, err = o.resolver.Resolve(name, deal.ContactNumber, true)
		if err != nil {
			return nil, err
		}
		if err := o.deals.SetContactID(deal.ID, contact.ID); err != nil {
			return nil, err
		}
		return contact, nil
	}

	if contact.ContactName == model.PlaceholderName {
		if err := o.resolver.Rename(contact, name); err != nil {
			return nil, err
		}
	}
	return contact, nil
}

// syncDeal mirrors a configured deal into the CRM: create the remote deal if
// none exists yet, then push the custom fields. Failures are logged and never
// touch the committed local record.
func (o *Orchestrator) syncDeal(deal *model.Deal, contact *model.Contact, spec store.CategorySpec, name string) {
	if contact == nil || contact.PipedriveContactID == "" {
		o.log.Warn("Skipping Pipedrive sync: contact has no remote id",
			zap.Uint("deal_id", deal.ID))
		return
	}

	if deal.PipedriveDealID == "" {
		var value int64
		if spec.Budget.Valid {
			value = spec.Budget.Decimal.IntPart()
		}
		remoteID, err := o.crm.CreateDeal(contact.PipedriveContactID, spec.Name, value)
		prometheus.RecordCrmSync("create_deal", err)
		if err != nil {
			o.log.Error("Failed to create deal in Pipedrive",
				zap.Uint("deal_id", deal.ID),
				zap.Error(err))
			return
		}
		// A failed local write here loses the remote id, but the remote deal
		// exists: keep pushing fields to it instead of abandoning the sync.
		if err := o.deals.SetRemoteDealID(deal.ID, remoteID); err != nil {
			o.log.Error("Failed to record pipedrive deal id locally, continuing field push",
				zap.Uint("deal_id", deal.ID),
				zap.String("pipedrive_deal_id", remoteID),
				zap.Error(err))
		}
		deal.PipedriveDealID = remoteID
	}

	fields := pipedrive.DealFields{
		Category:  spec.Name,
		EventDate: spec.EventDate,
		Venue:     spec.Venue,
		FullName:  name,
		Budget:    spec.Budget,
	}
	err := o.crm.UpdateDealFields(deal.PipedriveDealID, fields)
	prometheus.RecordCrmSync("update_deal_fields", err)
	if err != nil {
		o.log.Error("Failed to update deal fields in Pipedrive",
			zap.String("pipedrive_deal_id", deal.PipedriveDealID),
			zap.Error(err))
	}
}

// UpdateDeal replaces a deal's fields unconditionally from request data.
// There is no state-machine guard on this path.
func (o *Orchestrator) UpdateDeal(id uint, name, contactNumber string, spec store.CategorySpec) (*model.Deal, error) {
	return o.deals.Update(id, name, contactNumber, spec)
}

// GetDeal returns a single deal by id.
func (o *Orchestrator) GetDeal(id uint) (*model.Deal, error) {
	return o.deals.Get(id)
}

// ListDeals returns deals filtered by at most one of user name, contact
// number or category; with no filter it returns everything.
func (o *Orchestrator) ListDeals(name, contactNumber, category string) ([]model.Deal, error) {
	switch {
	case name != "":
		return o.deals.ByUserName(name)
	case contactNumber != "":
		return o.deals.ByContactNumber(contactNumber)
	case category != "":
		return o.deals.ByCategory(category)
	default:
		return o.deals.All()
	}
}

// DeleteDeal removes a deal outright and reports whether it existed.
func (o *Orchestrator) DeleteDeal(id uint) (bool, error) {
	return o.deals.Delete(id)
}

// DeleteDealsByUserName removes every deal for a user and reports the count.
func (o *Orchestrator) DeleteDealsByUserName(name string) (int64, error) {
	return o.deals.DeleteByUserName(name)
}

func contactRef(contact *model.Contact) *uint {
	if contact == nil {
		return nil
	}
	return &contact.ID
}
