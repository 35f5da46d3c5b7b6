package store

import (
	"fmt"
	"sync/atomic"
	"testing"

	"leadintake-service/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq int64

// openTestDB opens a fresh in-memory database per test. Each test gets a
// unique DSN so the shared cache never bleeds rows between tests.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
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
