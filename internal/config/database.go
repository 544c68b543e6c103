package config

import (
	"database/sql"
	"net/url"
	"time"
)

// connectionPragmas are applied by the driver to every pooled connection.
var connectionPragmas = []string{
	"busy_timeout(5000)", // Wait for the write lock instead of failing with SQLITE_BUSY
	"foreign_keys(1)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
}

// DSN builds the modernc.org/sqlite data source name for a database file.
// Transactions start with BEGIN IMMEDIATE so the write lock is held from the
// first read of a read-check-write sequence.
func DSN(path string) string {
	q := url.Values{}
	for _, p := range connectionPragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// OptimizeDatabaseConnection applies performance optimizations to the database connection
func OptimizeDatabaseConnection(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
}

// ApplyPragmaOptimizations applies database-wide SQLite pragmas
func ApplyPragmaOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",    // Write-Ahead Logging for better concurrency
		"PRAGMA mmap_size = 268435456", // 256MB memory mapping
		"PRAGMA optimize",              // Enable query optimizer
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}

	return nil
}
