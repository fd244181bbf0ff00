// Package dbtest opens isolated in-memory SQLite databases carrying the
// application schema, for repository and service tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Schema mirrors the goose migrations with SQLite column types. Money columns are
// TEXT so decimal values round-trip exactly.
var Schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		mrp TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE coupons (
		id TEXT PRIMARY KEY,
		store_id TEXT,
		code TEXT NOT NULL UNIQUE,
		discount_type TEXT NOT NULL,
		coupon_type TEXT NOT NULL,
		discount_value TEXT NOT NULL,
		min_cart_value TEXT NOT NULL DEFAULT '0',
		max_discount_amount TEXT,
		valid_from DATETIME NOT NULL,
		valid_until DATETIME NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		usage_limit INTEGER,
		used_count INTEGER NOT NULL DEFAULT 0,
		per_user_limit INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE coupon_usages (
		id TEXT PRIMARY KEY,
		coupon_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		used_count INTEGER NOT NULL DEFAULT 0,
		last_used_at DATETIME NOT NULL,
		created_at DATETIME,
		UNIQUE (coupon_id, user_id)
	)`,
	`CREATE TABLE offers (
		id TEXT PRIMARY KEY,
		store_id TEXT,
		name TEXT NOT NULL,
		offer_type TEXT NOT NULL,
		offer_scope TEXT NOT NULL,
		buy_quantity INTEGER NOT NULL DEFAULT 0,
		get_quantity INTEGER NOT NULL DEFAULT 0,
		get_discount_percent TEXT NOT NULL DEFAULT '0',
		valid_from DATETIME NOT NULL,
		valid_until DATETIME NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_offers (
		id TEXT PRIMARY KEY,
		offer_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT 0,
		bundle_quantity INTEGER NOT NULL DEFAULT 1,
		bundle_discount_percent TEXT NOT NULL DEFAULT '0',
		created_at DATETIME,
		UNIQUE (offer_id, product_id)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		items_total TEXT NOT NULL,
		coupon_id TEXT,
		coupon_discount TEXT NOT NULL DEFAULT '0',
		offer_id TEXT,
		offer_discount TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		product_listing_count INTEGER NOT NULL DEFAULT 0,
		total_units INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		cancel_requested BOOLEAN NOT NULL DEFAULT 0,
		cancel_approved BOOLEAN NOT NULL DEFAULT 0,
		return_requested BOOLEAN NOT NULL DEFAULT 0,
		return_approved BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		transaction_id TEXT NOT NULL UNIQUE,
		payment_gateway TEXT,
		payment_url TEXT,
		platform TEXT NOT NULL DEFAULT 'web',
		device_info TEXT,
		gateway_status TEXT,
		status_observed_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE delivery_packages (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		tracking_number TEXT UNIQUE,
		provider_order_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		product_listing_count INTEGER NOT NULL DEFAULT 0,
		total_units INTEGER NOT NULL DEFAULT 0,
		delivery_out_date DATETIME,
		delivered_date DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE package_items (
		id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL,
		order_item_id TEXT NOT NULL UNIQUE,
		quantity INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh database private to the calling test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// TxRunner satisfies the services' transaction runner over a test database.
type TxRunner struct {
	DB *gorm.DB
}

func (r TxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}
