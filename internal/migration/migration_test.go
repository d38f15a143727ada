package migration

import (
	"testing"

	"github.com/glebarez/sqlite"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsAreReadable(t *testing.T) {
	src, err := newSource()
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first version 1, got %d", first)
	}
	up, _, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("read up: %v", err)
	}
	up.Close()
}

func TestAutoMigrateCreatesEventTable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_test?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	if !conn.Migrator().HasTable(&paymentdomain.EventRecord{}) {
		t.Fatalf("expected payment_webhook_events table")
	}
	if !conn.Migrator().HasIndex(&paymentdomain.EventRecord{}, "ux_webhook_events_provider_event") {
		t.Fatalf("expected provider event unique index")
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	if err := RunMigrations(nil); err == nil {
		t.Fatalf("expected nil handle to be rejected")
	}
}
