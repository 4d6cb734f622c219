package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/ordersettle/pkg/migrate"
	"github.com/pressly/goose/v3"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Check(migrate.Files()); err != nil {
		t.Fatalf("check migrations: %v", err)
	}
}

func TestCheckRejectsBrokenFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {"create_orders.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260301090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {"20260301090000_a.sql": {Data: []byte("-- +goose Up\n")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.Check(fsys); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestScaffoldWritesCheckableFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path, err := migrate.Scaffold(dir, "Add Refund Columns!", now)
	if err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	if filepath.Base(path) != "20260302100000_add_refund_columns.sql" {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.Check(os.DirFS(dir)); err != nil {
		t.Fatalf("scaffolded file should pass check: %v", err)
	}
	if _, err := migrate.Scaffold(dir, "add refund columns", now); err == nil {
		t.Fatalf("expected error when the file already exists")
	}
}

func TestOrdersMigrationContainsSettlementColumns(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_orders.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no orders migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"checkout_id uuid NOT NULL",
		"payment_status text NOT NULL DEFAULT 'pending'",
		"is_temporary boolean NOT NULL DEFAULT false",
		"gateway_session_id text",
		"CREATE TABLE IF NOT EXISTS points_histories",
		"CREATE INDEX IF NOT EXISTS idx_orders_temporary_pending",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestVoucherUsagesKeyedByVoucherAndUser(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_vouchers.sql"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("voucher migration not found: %v", err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	if !strings.Contains(string(data), "PRIMARY KEY (voucher_id, user_id)") {
		t.Fatalf("expected composite key on voucher_usages")
	}
}

func TestDialect(t *testing.T) {
	if got := migrate.Dialect("sqlite"); got != goose.DialectSQLite3 {
		t.Fatalf("expected sqlite3, got %q", got)
	}
	if got := migrate.Dialect("postgres"); got != goose.DialectPostgres {
		t.Fatalf("expected postgres, got %q", got)
	}
}
