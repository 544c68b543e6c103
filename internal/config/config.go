package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jbweber/homelab/ipdesk/internal/migrations"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// Config holds all configuration for the ipdesk service
type Config struct {
	DBPath     string      `yaml:"db_path"`
	ListenAddr string      `yaml:"listen_addr"`
	Log        LogConfig   `yaml:"log"`
	Sweep      SweepConfig `yaml:"sweep"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SweepConfig controls the background expiration sweeper
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath:     "~/ipdesk/data/ipdesk.db",
		ListenAddr: ":8080",
		Log: LogConfig{
			Level: "info",
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
	}
}

// LoadConfig reads a YAML file over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(cfg.expandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %s", c.Sweep.Interval)
	}
	return nil
}

// InitializeDatabase creates and configures the database connection
func (c *Config) InitializeDatabase() (*sql.DB, error) {
	dbPath := c.DatabasePath()

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// OpenDatabase opens the SQLite file at path with the connection settings every
// ipdesk process must share. It does not run migrations.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	OptimizeDatabaseConnection(db)

	if err := ApplyPragmaOptimizations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply performance optimizations: %w", err)
	}

	return db, nil
}

// DatabasePath returns DBPath with ~ expanded
func (c *Config) DatabasePath() string {
	return c.expandPath(c.DBPath)
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Return original path if we can't get home dir
		return path
	}

	return filepath.Join(homeDir, path[2:])
}

// RunMigrations runs all database migrations
func RunMigrations(db *sql.DB) error {
	migrator := migrations.NewMigrator(db)

	for _, migration := range migrations.All() {
		migrator.AddMigration(migration)
	}

	return migrator.RunMigrations()
}
