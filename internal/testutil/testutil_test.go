package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupTestDB(t *testing.T) {
	db, cleanup := SetupTestDB(t, "TestSetupTestDB")
	defer cleanup()

	if db == nil {
		t.Fatal("Expected non-nil database")
	}

	if err := db.Ping(); err != nil {
		t.Errorf("Database ping failed: %v", err)
	}

	var result string
	if err := db.QueryRow("SELECT 'test'").Scan(&result); err != nil {
		t.Errorf("Test query failed: %v", err)
	}
	if result != "test" {
		t.Errorf("Expected 'test', got '%s'", result)
	}

	var fkEnabled bool
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Errorf("Failed to check foreign keys: %v", err)
	}
	if !fkEnabled {
		t.Error("Expected foreign keys to be enabled on every connection")
	}
}

func TestSetupTestDBWithMigrations(t *testing.T) {
	db, cleanup := SetupTestDBWithMigrations(t, "TestSetupTestDBWithMigrations")
	defer cleanup()

	tables := []string{"schema_migrations", "rooms", "companies", "ips", "ip_requests", "ip_history"}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Errorf("Error checking for table %s: %v", table, err)
		}
		if count == 0 {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestSetupTestDB_MultipleInstances(t *testing.T) {
	db1, cleanup1 := SetupTestDBWithMigrations(t, "TestSetupTestDB_MultipleInstances_1")
	defer cleanup1()

	db2, cleanup2 := SetupTestDBWithMigrations(t, "TestSetupTestDB_MultipleInstances_2")
	defer cleanup2()

	if _, err := db1.Exec("INSERT INTO rooms (number) VALUES ('A-1')"); err != nil {
		t.Fatalf("Failed to insert room: %v", err)
	}

	var count int
	if err := db2.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&count); err != nil {
		t.Fatalf("Failed to count rooms: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected databases to be isolated, second has %d rooms", count)
	}
}

func TestNewTestDSN(t *testing.T) {
	dsn := NewTestDSN("/tmp/x", "TestParent/sub case")

	if !strings.HasPrefix(dsn, "file:/tmp/x/TestParent_sub_case.db?") {
		t.Errorf("Unexpected DSN: %s", dsn)
	}
	if !strings.Contains(dsn, "_txlock=immediate") {
		t.Errorf("Expected immediate transactions in DSN: %s", dsn)
	}
}

func TestCleanupTestDB(t *testing.T) {
	dir := t.TempDir()
	dsn := NewTestDSN(dir, "cleanup")
	path := filepath.Join(dir, "cleanup.db")

	for _, p := range []string{path, path + "-wal"} {
		if err := os.WriteFile(p, nil, 0600); err != nil {
			t.Fatalf("Failed to create %s: %v", p, err)
		}
	}

	if err := CleanupTestDB(dsn); err != nil {
		t.Fatalf("CleanupTestDB failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected database file to be removed")
	}

	// Second call is a no-op
	if err := CleanupTestDB(dsn); err != nil {
		t.Errorf("Second cleanup call failed: %v", err)
	}

	if err := CleanupTestDB("invalid-dsn"); err == nil {
		t.Error("Expected error for invalid DSN")
	}
}
