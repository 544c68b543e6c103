package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/ipdesk/internal/config"
	"github.com/jbweber/homelab/ipdesk/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cfg.InitializeDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := migrations.NewMigrator(db).GetCurrentVersion()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Schema at version %d\n", version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, closeDB, err := openMigrator()
		if err != nil {
			return err
		}
		defer closeDB()

		statuses, err := migrator.Status()
		if err != nil {
			return err
		}

		fmt.Printf("%-8s %-30s %s\n", "VERSION", "NAME", "APPLIED")
		for _, s := range statuses {
			applied := "no"
			if s.Applied {
				applied = "yes"
			}
			fmt.Printf("%-8d %-30s %s\n", s.Version, s.Name, applied)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recently applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, closeDB, err := openMigrator()
		if err != nil {
			return err
		}
		defer closeDB()

		reverted, err := migrator.RollbackLast()
		if err != nil {
			return err
		}
		if reverted == 0 {
			fmt.Println("Nothing to revert")
			return nil
		}
		fmt.Printf("✓ Reverted migration %d\n", reverted)
		return nil
	},
}

// openMigrator opens an existing database without migrating it
func openMigrator() (*migrations.Migrator, func(), error) {
	path := cfg.DatabasePath()
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("database %s: %w", path, err)
	}

	db, err := config.OpenDatabase(path)
	if err != nil {
		return nil, nil, err
	}

	migrator := migrations.NewMigrator(db)
	for _, m := range migrations.All() {
		migrator.AddMigration(m)
	}
	return migrator, func() { _ = db.Close() }, nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
