package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config == nil {
		t.Fatal("Expected non-nil config")
	}

	if config.DBPath != "~/ipdesk/data/ipdesk.db" {
		t.Errorf("Expected DBPath '~/ipdesk/data/ipdesk.db', got '%s'", config.DBPath)
	}

	if config.ListenAddr != ":8080" {
		t.Errorf("Expected ListenAddr ':8080', got '%s'", config.ListenAddr)
	}

	if !config.Sweep.Enabled || config.Sweep.Interval != time.Minute {
		t.Errorf("Expected sweep enabled every minute, got %+v", config.Sweep)
	}
}

func TestConfig_expandPath_WithTilde(t *testing.T) {
	config := NewConfig()

	expanded := config.expandPath("~/test/path")

	if strings.HasPrefix(expanded, "~/") {
		t.Errorf("Expected path to be expanded, got '%s'", expanded)
	}

	if !strings.HasSuffix(expanded, "test/path") {
		t.Errorf("Expected expanded path to end with 'test/path', got '%s'", expanded)
	}
}

func TestConfig_expandPath_WithoutTilde(t *testing.T) {
	config := NewConfig()

	for _, path := range []string{"/absolute/path", "relative/path"} {
		if expanded := config.expandPath(path); expanded != path {
			t.Errorf("Expected path to remain unchanged, got '%s'", expanded)
		}
	}
}

func TestConfig_DatabasePath(t *testing.T) {
	config := NewConfig()
	config.DBPath = "/srv/ipdesk.db"
	assert.Equal(t, "/srv/ipdesk.db", config.DatabasePath())
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ipdesk.yaml")
	content := `
db_path: /var/lib/ipdesk/ipdesk.db
listen_addr: 127.0.0.1:9000
log:
  level: debug
  json: true
sweep:
  enabled: true
  interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ipdesk/ipdesk.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: :9999\n"), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "~/ipdesk/data/ipdesk.db", cfg.DBPath)
	assert.Equal(t, time.Minute, cfg.Sweep.Interval)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("listen_addr: [unterminated\n"), 0600))
	_, err := LoadConfig(badYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")

	badInterval := filepath.Join(dir, "interval.yaml")
	require.NoError(t, os.WriteFile(badInterval, []byte("sweep:\n  enabled: true\n  interval: 0s\n"), 0600))
	_, err = LoadConfig(badInterval)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep.interval")
}

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/ipdesk.db")

	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/ipdesk.db?"))
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "busy_timeout")
	assert.Contains(t, dsn, "foreign_keys")
}

func TestConfig_InitializeDatabase_Success(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "test.db")

	db, err := config.InitializeDatabase()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Errorf("Database ping failed: %v", err)
	}

	var fkEnabled bool
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Errorf("Failed to check foreign keys: %v", err)
	}
	if !fkEnabled {
		t.Error("Expected foreign keys to be enabled")
	}

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='ip_history'").Scan(&tableName)
	if err != nil {
		t.Errorf("Expected ip_history table to exist: %v", err)
	}
}

func TestConfig_InitializeDatabase_DirectoryCreation(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "nested", "path", "test.db")

	db, err := config.InitializeDatabase()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(config.DBPath)); os.IsNotExist(err) {
		t.Errorf("Expected directory to be created: %s", filepath.Dir(config.DBPath))
	}
}

func TestConfig_InitializeDatabase_InvalidPath(t *testing.T) {
	config := NewConfig()

	// A regular file cannot be used as a parent directory
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	config.DBPath = filepath.Join(blocker, "ipdesk.db")

	db, err := config.InitializeDatabase()
	if err == nil {
		if db != nil {
			db.Close()
		}
		t.Fatal("Expected error for invalid path")
	}

	if !strings.Contains(err.Error(), "failed to create database directory") {
		t.Errorf("Expected directory creation error, got: %v", err)
	}
}
