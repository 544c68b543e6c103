package testutil

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jbweber/homelab/ipdesk/internal/config"
)

// NewTestDSN returns the DSN of a file-backed SQLite database named after
// the test inside dir. Files are used instead of shared-cache memory databases
// so concurrent transactions get real locking.
func NewTestDSN(dir, testName string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, testName)
	return config.DSN(filepath.Join(dir, name+".db"))
}

// CleanupTestDB removes the test database file and its WAL sidecars.
// Removing an absent database is not an error.
func CleanupTestDB(dsn string) error {
	if !strings.HasPrefix(dsn, "file:") {
		return fmt.Errorf("invalid DSN format")
	}

	path := dsn[5:]
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// SetupTestDB creates and returns a test database connection
func SetupTestDB(t *testing.T, testName string) (*sql.DB, func()) {
	t.Helper()

	dsn := NewTestDSN(t.TempDir(), testName)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	config.OptimizeDatabaseConnection(db)
	if err := config.ApplyPragmaOptimizations(db); err != nil {
		db.Close()
		t.Fatalf("Failed to apply pragmas: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
		if err := CleanupTestDB(dsn); err != nil {
			t.Logf("Warning: failed to remove test database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestDBWithMigrations creates a test database with the full schema applied
func SetupTestDBWithMigrations(t *testing.T, testName string) (*sql.DB, func()) {
	t.Helper()

	db, cleanup := SetupTestDB(t, testName)
	if err := config.RunMigrations(db); err != nil {
		cleanup()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db, cleanup
}
