// Package dbtest opens throwaway sqlite databases carrying the channel sync schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/db"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db/models"
)

// Open returns an isolated in-memory database with every model migrated.
// The pool is pinned to one connection so transactions serialise the way
// they would against a single postgres session.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&models.Product{},
		&models.ChannelInventoryAllocation{},
		&models.Order{},
		&models.OrderItem{},
		&models.ShippingAddress{},
		&models.ChannelOrder{},
		&models.VendorTransaction{},
		&models.ChannelReturn{},
		&models.SyncRun{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// Client wraps Open in a db.Client for code that needs a transaction runner.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.Wrap(conn), conn
}
