package dealflow

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leadintake-service/internal/identity"
	"leadintake-service/internal/model"
	"leadintake-service/internal/store"
	"leadintake-service/pkg/config"
	"leadintake-service/pkg/pipedrive"
	"leadintake-service/prometheus"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var metricsOnce sync.Once

// initTestMetrics registers the metric vectors once per test binary so the
// counter-delta tests can observe the orchestrator's recording.
func initTestMetrics() {
	metricsOnce.Do(func() {
		prometheus.InitMetrics(&config.Config{Metrics: config.MetricsConfig{Prefix: "dealflowtest"}})
	})
}

var testDBSeq int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:dealflowtest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&model.Contact{}, &model.Deal{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// fakeCRM stands in for the Pipedrive client on both the person and the deal
// side. When fail is set every call errors.
type fakeCRM struct {
	fail bool

	personCalls int
	dealCalls   int
	dealTitles  []string
	dealValues  []int64
	updates     []pipedrive.DealFields
	renames     int
}

func (f *fakeCRM) CreatePerson(name, contactNumber string) (string, error) {
	f.personCalls++
	if f.fail {
		return "", errors.New("pipedrive unreachable")
	}
	return fmt.Sprintf("person-%d", f.personCalls), nil
}

func (f *fakeCRM) UpdatePersonName(remotePersonID, name string) error {
	f.renames++
	if f.fail {
		return errors.New("pipedrive unreachable")
	}
	return nil
}

func (f *fakeCRM) CreateDeal(remotePersonID, title string, value int64) (string, error) {
	f.dealCalls++
	if f.fail {
		return "", errors.New("pipedrive unreachable")
	}
	f.dealTitles = append(f.dealTitles, title)
	f.dealValues = append(f.dealValues, value)
	return fmt.Sprintf("crm-deal-%d", f.dealCalls), nil
}

func (f *fakeCRM) UpdateDealFields(remoteDealID string, fields pipedrive.DealFields) error {
	if f.fail {
		return errors.New("pipedrive unreachable")
	}
	f.updates = append(f.updates, fields)
	return nil
}

// fakeNotifier records confirmation sends.
type fakeNotifier struct {
	fail       bool
	calls      int
	lastNumber string
	lastName   string
	lastCats   []string
}

func (f *fakeNotifier) SendDealConfirmation(contactNumber, name string, categories []string, eventDate *time.Time, venue string) error {
	f.calls++
	f.lastNumber = contactNumber
	f.lastName = name
	f.lastCats = categories
	if f.fail {
		return errors.New("whatsapp unreachable")
	}
	return nil
}

type fixture struct {
	flow     *Orchestrator
	deals    *store.DealStore
	contacts *store.ContactStore
	crm      *fakeCRM
	notifier *fakeNotifier
	db       *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := openTestDB(t)
	deals := store.NewDealStore(db)
	contacts := store.NewContactStore(db)
	crm := &fakeCRM{}
	notifier := &fakeNotifier{}
	resolver := identity.NewResolver(contacts, crm, zap.NewNop())
	flow := New(deals, contacts, resolver, crm, notifier, zap.NewNop())

	return &fixture{flow: flow, deals: deals, contacts: contacts, crm: crm, notifier: notifier, db: db}
}

func datePtr(value string) *time.Time {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestCreateDealsBulkIntake(t *testing.T) {
	f := newFixture(t)

	message, deals, err := f.flow.CreateDeals("Amee", "+15550301", []store.CategorySpec{
		{Name: "Photography", Budget: decimal.NewNullDecimal(decimal.NewFromInt(50000))},
		{Name: "Catering"},
		{Name: "Decor"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Successfully created 3 deal(s) for user Amee", message)
	require.Len(t, deals, 3)

	contact, err := f.contacts.FindByNumber("+15550301")
	require.NoError(t, err)
	require.NotNil(t, contact)
	for _, deal := range deals {
		assert.Equal(t, model.StageConfigured, deal.Stage)
		require.NotNil(t, deal.ContactID)
		assert.Equal(t, contact.ID, *deal.ContactID)
	}

	// Bulk intake is local-only: no CRM traffic at all.
	assert.Zero(t, f.crm.personCalls)
	assert.Zero(t, f.crm.dealCalls)
	assert.Zero(t, f.notifier.calls)
}

func TestCreateDealsRequiresCategories(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.flow.CreateDeals("Amee", "+15550302", nil)
	assert.ErrorIs(t, err, ErrNoCategories)
}

func TestInitializeDealIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.flow.InitializeDeal("+15550002")
	require.NoError(t, err)
	second, err := f.flow.InitializeDeal("+15550002")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var dealCount, contactCount int64
	require.NoError(t, f.db.Model(&model.Deal{}).Count(&dealCount).Error)
	require.NoError(t, f.db.Model(&model.Contact{}).Count(&contactCount).Error)
	assert.Equal(t, int64(1), dealCount)
	assert.Equal(t, int64(1), contactCount)

	deal, err := f.deals.Get(first)
	require.NoError(t, err)
	assert.Equal(t, model.StagePlaceholder, deal.Stage)
	assert.Equal(t, model.PlaceholderName, deal.UserName)
	assert.Equal(t, "crm-deal-1", deal.PipedriveDealID)
	assert.Equal(t, []string{model.PlaceholderName + " Deal"}, f.crm.dealTitles)
	assert.Equal(t, []int64{0}, f.crm.dealValues)
}

func TestInitializeDealSucceedsWhenCRMDown(t *testing.T) {
	f := newFixture(t)
	f.crm.fail = true

	id, err := f.flow.InitializeDeal("+15550303")
	require.NoError(t, err)

	deal, err := f.deals.Get(id)
	require.NoError(t, err)
	assert.Empty(t, deal.PipedriveDealID)

	contact, err := f.contacts.FindByNumber("+15550303")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Empty(t, contact.PipedriveContactID)
}

func TestInitializeDealBackfillsRemoteOnRetry(t *testing.T) {
	f := newFixture(t)
	f.crm.fail = true

	id, err := f.flow.InitializeDeal("+15550304")
	require.NoError(t, err)

	f.crm.fail = false
	retried, err := f.flow.InitializeDeal("+15550304")
	require.NoError(t, err)
	require.Equal(t, id, retried)

	deal, err := f.deals.Get(id)
	require.NoError(t, err)
	assert.NotEmpty(t, deal.PipedriveDealID)

	contact, err := f.contacts.FindByNumber("+15550304")
	require.NoError(t, err)
	assert.NotEmpty(t, contact.PipedriveContactID)
}

func TestTwoPhaseUpdateFansOutCategories(t *testing.T) {
	f := newFixture(t)

	id, err := f.flow.InitializeDeal("+15550305")
	require.NoError(t, err)

	specs := []store.CategorySpec{
		{Name: "Photography", EventDate: datePtr("2026-12-05"), Venue: "Garden Court", Budget: decimal.NewNullDecimal(decimal.NewFromInt(75000))},
		{Name: "Catering", Budget: decimal.NewNullDecimal(decimal.NewFromInt(30000))},
		{Name: "Decor"},
	}
	promoted, err := f.flow.UpdateDealWithoutContactNumber(id, "Ravi", specs)
	require.NoError(t, err)

	// The original deal is promoted in place with the first category.
	assert.Equal(t, id, promoted.ID)
	assert.Equal(t, "Ravi", promoted.UserName)
	assert.Equal(t, "Photography", promoted.Category)
	assert.Equal(t, model.StageConfigured, promoted.Stage)

	all, err := f.deals.ByContactNumber("+15550305")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, id, all[0].ID)
	for _, deal := range all {
		assert.Equal(t, model.StageConfigured, deal.Stage)
		assert.Equal(t, "Ravi", deal.UserName)
	}

	// The placeholder contact picked up the real name.
	contact, err := f.contacts.FindByNumber("+15550305")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", contact.ContactName)
	assert.Equal(t, 1, f.crm.renames)

	// One remote deal existed from initialization; the two extra categories
	// created two more, and every deal got its fields pushed.
	assert.Equal(t, 3, f.crm.dealCalls)
	assert.Len(t, f.crm.updates, 3)
	assert.Equal(t, "Photography", f.crm.updates[0].Category)

	// A single confirmation covers all categories.
	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, "+15550305", f.notifier.lastNumber)
	assert.Equal(t, []string{"Photography", "Catering", "Decor"}, f.notifier.lastCats)
}

func TestTwoPhaseUpdateRejectsSecondCall(t *testing.T) {
	f := newFixture(t)

	id, err := f.flow.InitializeDeal("+15550306")
	require.NoError(t, err)

	_, err = f.flow.UpdateDealWithoutContactNumber(id, "Ravi", []store.CategorySpec{{Name: "Photography"}})
	require.NoError(t, err)

	_, err = f.flow.UpdateDealWithoutContactNumber(id, "Ravi", []store.CategorySpec{{Name: "Catering"}})
	assert.ErrorIs(t, err, store.ErrAlreadyConfigured)

	// The failed retry must not have created extra deals.
	all, err := f.deals.ByContactNumber("+15550306")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTwoPhaseUpdateMissingDeal(t *testing.T) {
	f := newFixture(t)

	_, err := f.flow.UpdateDealWithoutContactNumber(999, "Ravi", []store.CategorySpec{{Name: "Photography"}})
	assert.ErrorIs(t, err, store.ErrDealNotFound)
}

func TestTwoPhaseUpdateRequiresCategories(t *testing.T) {
	f := newFixture(t)

	id, err := f.flow.InitializeDeal("+15550307")
	require.NoError(t, err)

	_, err = f.flow.UpdateDealWithoutContactNumber(id, "Ravi", nil)
	assert.ErrorIs(t, err, ErrNoCategories)
}

func TestTwoPhaseUpdateSucceedsWhenCRMAndNotifierDown(t *testing.T) {
	f := newFixture(t)
	f.crm.fail = true
	f.notifier.fail = true

	id, err := f.flow.InitializeDeal("+15550308")
	require.NoError(t, err)

	promoted, err := f.flow.UpdateDealWithoutContactNumber(id, "Ravi", []store.CategorySpec{
		{Name: "Photography"},
		{Name: "Catering"},
	})
	require.NoError(t, err)
	assert.Empty(t, promoted.PipedriveDealID)

	all, err := f.deals.ByContactNumber("+15550308")
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, deal := range all {
		assert.Equal(t, model.StageConfigured, deal.Stage)
		assert.Empty(t, deal.PipedriveDealID)
	}
}

func TestTwoPhaseUpdateLinksUnlinkedDeal(t *testing.T) {
	f := newFixture(t)

	// A placeholder written before contact linking existed has no contact id.
	deal, _, err := f.deals.InitializeOrTouch("+15550309", nil)
	require.NoError(t, err)
	require.Nil(t, deal.ContactID)

	promoted, err := f.flow.UpdateDealWithoutContactNumber(deal.ID, "Maya", []store.CategorySpec{{Name: "Decor"}})
	require.NoError(t, err)

	reloaded, err := f.deals.Get(promoted.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ContactID)

	contact, err := f.contacts.FindByNumber("+15550309")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, *reloaded.ContactID)
	assert.Equal(t, "Maya", contact.ContactName)
}

func TestTwoPhaseUpdateRecordsSyncMetrics(t *testing.T) {
	initTestMetrics()
	f := newFixture(t)

	crmSuccess := func(operation string) float64 {
		return testutil.ToFloat64(prometheus.CrmSyncCounter.WithLabelValues(operation, "success"))
	}
	personBefore := crmSuccess("create_person")
	renameBefore := crmSuccess("update_person")
	createBefore := crmSuccess("create_deal")
	updateBefore := crmSuccess("update_deal_fields")
	notifyBefore := testutil.ToFloat64(prometheus.NotificationCounter.WithLabelValues("success"))

	id, err := f.flow.InitializeDeal("+15550312")
	require.NoError(t, err)
	_, err = f.flow.UpdateDealWithoutContactNumber(id, "Ravi", []store.CategorySpec{
		{Name: "Photography"},
		{Name: "Catering"},
	})
	require.NoError(t, err)

	// One person create and one placeholder deal at initialization, the
	// rename and one fan-out deal during the update, a field push per deal,
	// and a single confirmation.
	assert.Equal(t, personBefore+1, crmSuccess("create_person"))
	assert.Equal(t, renameBefore+1, crmSuccess("update_person"))
	assert.Equal(t, createBefore+2, crmSuccess("create_deal"))
	assert.Equal(t, updateBefore+2, crmSuccess("update_deal_fields"))
	assert.Equal(t, notifyBefore+1, testutil.ToFloat64(prometheus.NotificationCounter.WithLabelValues("success")))
}

func TestInitializeDealRecordsSyncFailure(t *testing.T) {
	initTestMetrics()
	f := newFixture(t)
	f.crm.fail = true

	personErrBefore := testutil.ToFloat64(prometheus.CrmSyncCounter.WithLabelValues("create_person", "error"))
	dealErrBefore := testutil.ToFloat64(prometheus.CrmSyncCounter.WithLabelValues("create_deal", "error"))

	_, err := f.flow.InitializeDeal("+15550313")
	require.NoError(t, err)

	assert.Equal(t, personErrBefore+1, testutil.ToFloat64(prometheus.CrmSyncCounter.WithLabelValues("create_person", "error")))
	// Without a remote person id no deal create is even attempted.
	assert.Equal(t, dealErrBefore, testutil.ToFloat64(prometheus.CrmSyncCounter.WithLabelValues("create_deal", "error")))
}

func TestSyncPushesFieldsWhenLocalRemoteIDWriteFails(t *testing.T) {
	f := newFixture(t)

	contact, _, err := f.contacts.GetOrCreate(&model.Contact{
		ContactName:        model.PlaceholderName,
		ContactNumber:      "+15550314",
		PipedriveContactID: "person-99",
	})
	require.NoError(t, err)

	deal, _, err := f.deals.InitializeOrTouch("+15550314", &contact.ID)
	require.NoError(t, err)

	// Make recording a new remote deal id fail while leaving every other
	// write alone.
	require.NoError(t, f.db.Exec(`CREATE TRIGGER block_remote_id
		BEFORE UPDATE OF pipedrive_deal_id ON deals
		WHEN NEW.pipedrive_deal_id IS NOT OLD.pipedrive_deal_id
		BEGIN SELECT RAISE(ABORT, 'simulated write failure'); END`).Error)

	promoted, err := f.flow.UpdateDealWithoutContactNumber(deal.ID, "Ravi", []store.CategorySpec{{Name: "Photography"}})
	require.NoError(t, err)
	assert.Equal(t, model.StageConfigured, promoted.Stage)

	// The remote deal exists and its fields were pushed even though the id
	// never made it into the local row.
	assert.Equal(t, 1, f.crm.dealCalls)
	require.Len(t, f.crm.updates, 1)
	assert.Equal(t, "Photography", f.crm.updates[0].Category)

	stored, err := f.deals.Get(deal.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PipedriveDealID)
}

func TestListDealsFilters(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.flow.CreateDeals("Amee", "+15550310", []store.CategorySpec{{Name: "Photography"}, {Name: "Catering"}})
	require.NoError(t, err)
	_, _, err = f.flow.CreateDeals("Ravi", "+15550311", []store.CategorySpec{{Name: "Photography"}})
	require.NoError(t, err)

	byName, err := f.flow.ListDeals("Amee", "", "")
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	byNumber, err := f.flow.ListDeals("", "+15550311", "")
	require.NoError(t, err)
	assert.Len(t, byNumber, 1)

	byCategory, err := f.flow.ListDeals("", "", "Photography")
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)

	all, err := f.flow.ListDeals("", "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
