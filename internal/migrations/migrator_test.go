package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Warning: failed to close test database: %v", closeErr)
		}
	})
	return db
}

func TestMigrator_RunMigrations(t *testing.T) {
	db := openTestDB(t, "TestMigrator_RunMigrations")

	migrator := NewMigrator(db)
	for _, migration := range All() {
		migrator.AddMigration(migration)
	}

	err := migrator.RunMigrations()
	require.NoError(t, err)

	version, err := migrator.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	for _, table := range []string{"rooms", "companies", "ips", "ip_requests", "ip_history", "schema_migrations"} {
		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = 2 AND name = 'add_query_indices'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Running again is a no-op
	require.NoError(t, migrator.RunMigrations())
}

func TestMigrator_AddMigration(t *testing.T) {
	db := openTestDB(t, "TestMigrator_AddMigration")

	migrator := NewMigrator(db)

	// Add migrations out of order
	migrator.AddMigration(Migration{Version: 3, Name: "third"})
	migrator.AddMigration(Migration{Version: 1, Name: "first"})
	migrator.AddMigration(Migration{Version: 2, Name: "second"})

	migrations := migrator.GetMigrations()
	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, int64(2), migrations[1].Version)
	assert.Equal(t, int64(3), migrations[2].Version)
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t, "TestMigrator_FailedMigrationIsNotRecorded")

	migrator := NewMigrator(db)
	migrator.AddMigration(Migration{
		Version: 1,
		Name:    "half_done",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec("CREATE TABLE half (id INTEGER)"); err != nil {
				return err
			}
			return errors.New("boom")
		},
	})

	err := migrator.RunMigrations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "half_done")

	version, err := migrator.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='half'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "schema change must roll back with the failed migration")
}

func TestMigrator_RollbackLast(t *testing.T) {
	db := openTestDB(t, "TestMigrator_RollbackLast")

	migrator := NewMigrator(db)
	for _, migration := range All() {
		migrator.AddMigration(migration)
	}
	require.NoError(t, migrator.RunMigrations())

	reverted, err := migrator.RollbackLast()
	require.NoError(t, err)
	assert.Equal(t, int64(2), reverted)

	version, err := migrator.GetCurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_ips_room_id'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMigrator_Status(t *testing.T) {
	db := openTestDB(t, "TestMigrator_Status")

	migrator := NewMigrator(db)
	for _, migration := range GetInitialMigrations() {
		migrator.AddMigration(migration)
	}
	require.NoError(t, migrator.RunMigrations())
	for _, migration := range GetPerformanceMigrations() {
		migrator.AddMigration(migration)
	}

	statuses, err := migrator.Status()
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)
}

func TestHistoryTableIsAppendOnly(t *testing.T) {
	db := openTestDB(t, "TestHistoryTableIsAppendOnly")

	migrator := NewMigrator(db)
	for _, migration := range All() {
		migrator.AddMigration(migration)
	}
	require.NoError(t, migrator.RunMigrations())

	_, err := db.Exec(`INSERT INTO ip_history (action, performed_by, timestamp, operation_id)
		VALUES ('requested', 'alice', '2026-01-01T00:00:00.000000000Z', 'op-1')`)
	require.NoError(t, err)

	_, err = db.Exec("UPDATE ip_history SET notes = 'edited'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = db.Exec("DELETE FROM ip_history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}
