package handler

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"leadintake-service/internal/dealflow"
	"leadintake-service/internal/identity"
	"leadintake-service/internal/model"
	"leadintake-service/internal/store"
	"leadintake-service/internal/viewcache"
	"leadintake-service/pkg/pipedrive"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq int64

// stubCRM answers every remote call with a canned id.
type stubCRM struct {
	seq int
}

func (s *stubCRM) CreatePerson(name, contactNumber string) (string, error) {
	s.seq++
	return fmt.Sprintf("person-%d", s.seq), nil
}

func (s *stubCRM) UpdatePersonName(remotePersonID, name string) error { return nil }

func (s *stubCRM) CreateDeal(remotePersonID, title string, value int64) (string, error) {
	s.seq++
	return fmt.Sprintf("crm-deal-%d", s.seq), nil
}

func (s *stubCRM) UpdateDealFields(remoteDealID string, fields pipedrive.DealFields) error {
	return nil
}

type stubNotifier struct{}

func (stubNotifier) SendDealConfirmation(contactNumber, name string, categories []string, eventDate *time.Time, venue string) error {
	return nil
}

// setupServer wires a full echo instance against a fresh in-memory database
// and stub outbound clients, mirroring the route table from main.
func setupServer(t *testing.T) *echo.Echo {
	t.Helper()

	dsn := fmt.Sprintf("file:handlertest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := testDB.AutoMigrate(&model.Contact{}, &model.Deal{}, &model.BlogCategory{}, &model.BlogPost{}, &model.PageView{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := zap.NewNop()
	crm := &stubCRM{}
	contacts := store.NewContactStore(testDB)
	deals := store.NewDealStore(testDB)
	resolver := identity.NewResolver(contacts, crm, log)
	flow := dealflow.New(deals, contacts, resolver, crm, stubNotifier{}, log)

	Init(flow, testDB, viewcache.New(5*time.Second, 1000))

	e := echo.New()
	e.GET("/", Hello)
	e.GET("/health", HealthCheck)

	api := e.Group("/api")

	dealRoutes := api.Group("/deals")
	dealRoutes.POST("", CreateDeals)
	dealRoutes.POST("/initialize", InitializeDeal)
	dealRoutes.GET("", ListDeals)
	dealRoutes.GET("/:id", GetDeal)
	dealRoutes.PUT("/:id", UpdateDeal)
	dealRoutes.PUT("/:id/details", UpdateDealDetails)
	dealRoutes.DELETE("/:id", DeleteDeal)
	dealRoutes.DELETE("/user/:name", DeleteDealsByName)

	blog := api.Group("/blog")
	blog.POST("/categories", CreateBlogCategory)
	blog.GET("/categories", ListBlogCategories)
	blog.GET("/categories/:idOrSlug", GetBlogCategory)
	blog.PUT("/categories/:id", UpdateBlogCategory)
	blog.DELETE("/categories/:id", DeleteBlogCategory)
	blog.POST("/posts", CreateBlogPost)
	blog.GET("/posts", ListBlogPosts)
	blog.GET("/posts/:slug", GetBlogPostBySlug)
	blog.PUT("/posts/:id", UpdateBlogPost)
	blog.DELETE("/posts/:id", DeleteBlogPost)
	blog.POST("/posts/:slug/view", TrackBlogPostView)

	pageviews := api.Group("/page-views")
	pageviews.POST("", TrackPageView)
	pageviews.GET("", GetPageViewCounts)
	pageviews.GET("/entity/:type/:id", GetEntityViewCounts)

	return e
}

// perform runs one JSON request through the server and returns the recorder.
func perform(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req = httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return body
}
