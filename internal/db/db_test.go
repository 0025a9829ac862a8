package db

import (
	"strings"
	"testing"
)

func TestDSNContainsPragmas(t *testing.T) {
	dsn := DSN("/tmp/x.sqlite3")
	for _, want := range []string{"file:/tmp/x.sqlite3?", "_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_txlock=immediate"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q missing %q", dsn, want)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	database := NewTestDB(t)

	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var version int
	if err := database.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("reading user_version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("expected user_version %d, got %d", len(migrations), version)
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	database := NewTestDB(t)

	var on int
	if err := database.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("reading foreign_keys: %v", err)
	}
	if on != 1 {
		t.Errorf("expected foreign_keys=1, got %d", on)
	}
}
