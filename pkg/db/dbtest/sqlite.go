// Package dbtest opens throwaway sqlite databases carrying the settlement schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  rewards_points INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE addresses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  line1 TEXT NOT NULL,
  city TEXT NOT NULL,
  phone TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  images TEXT,
  category_ids TEXT,
  price INTEGER NOT NULL,
  discount_percent INTEGER NOT NULL DEFAULT 0,
  stock INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE vouchers (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  discount_type TEXT NOT NULL,
  discount_value INTEGER NOT NULL,
  max_discount INTEGER,
  min_order_value INTEGER NOT NULL DEFAULT 0,
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  usage_limit INTEGER,
  usage_count INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  apply_for_all_products INTEGER NOT NULL DEFAULT 1,
  product_ids TEXT,
  category_ids TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE voucher_usages (
  voucher_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  order_id TEXT,
  created_at DATETIME,
  PRIMARY KEY (voucher_id, user_id)
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  checkout_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  cart_item_id TEXT,
  address_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  product_images TEXT,
  quantity INTEGER NOT NULL,
  unit_price INTEGER NOT NULL,
  sub_total_amt INTEGER NOT NULL,
  product_discount_amt INTEGER NOT NULL DEFAULT 0,
  voucher_discount_amt INTEGER NOT NULL DEFAULT 0,
  points_discount_amt INTEGER NOT NULL DEFAULT 0,
  shipping_fee_amt INTEGER NOT NULL DEFAULT 0,
  total_amt INTEGER NOT NULL,
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  status TEXT NOT NULL DEFAULT 'pending',
  voucher_id TEXT,
  voucher_code TEXT,
  voucher_type TEXT,
  free_shipping_voucher_id TEXT,
  free_shipping_voucher_code TEXT,
  cancel_reason TEXT,
  cancelled_at DATETIME,
  is_paid INTEGER NOT NULL DEFAULT 0,
  paid_at DATETIME,
  is_delivered INTEGER NOT NULL DEFAULT 0,
  delivered_at DATETIME,
  is_temporary INTEGER NOT NULL DEFAULT 0,
  gateway_session_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE points_histories (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  checkout_id TEXT NOT NULL,
  earned INTEGER NOT NULL,
  used INTEGER NOT NULL,
  delta INTEGER NOT NULL,
  reason TEXT NOT NULL,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with every settlement table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:settle_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}
