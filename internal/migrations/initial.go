package migrations

import (
	"database/sql"
)

// GetInitialMigrations returns all initial migrations
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_allocation_tables",
			Up: func(tx *sql.Tx) error {
				statements := []string{
					`CREATE TABLE rooms (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						number TEXT NOT NULL UNIQUE,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE companies (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						owner TEXT NOT NULL,
						room_id INTEGER NOT NULL,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						FOREIGN KEY (room_id) REFERENCES rooms(id)
					)`,
					// status = in_use iff company_id is set
					`CREATE TABLE ips (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						address TEXT NOT NULL UNIQUE,
						address_num INTEGER NOT NULL,
						room_id INTEGER NOT NULL,
						status TEXT NOT NULL DEFAULT 'available'
							CHECK (status IN ('available', 'in_use', 'expired')),
						mac_address TEXT NOT NULL DEFAULT '',
						company_id INTEGER,
						expires_at TEXT,
						version INTEGER NOT NULL DEFAULT 1,
						updated_at TEXT NOT NULL,
						CHECK ((status = 'in_use') = (company_id IS NOT NULL)),
						FOREIGN KEY (room_id) REFERENCES rooms(id),
						FOREIGN KEY (company_id) REFERENCES companies(id)
					)`,
					`CREATE TABLE ip_requests (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						type TEXT NOT NULL CHECK (type IN ('new', 'renewal', 'cancellation')),
						status TEXT NOT NULL DEFAULT 'pending'
							CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled')),
						justification TEXT NOT NULL,
						company_id INTEGER NOT NULL,
						requested_by TEXT NOT NULL,
						ip_id INTEGER,
						mac_address TEXT NOT NULL DEFAULT '',
						temporary INTEGER NOT NULL DEFAULT 0,
						expires_at TEXT,
						rejection_reason TEXT NOT NULL DEFAULT '',
						notes TEXT NOT NULL DEFAULT '',
						decided_by TEXT NOT NULL DEFAULT '',
						decided_at TEXT,
						requested_at TEXT NOT NULL,
						FOREIGN KEY (company_id) REFERENCES companies(id),
						FOREIGN KEY (ip_id) REFERENCES ips(id)
					)`,
					`CREATE UNIQUE INDEX idx_ip_requests_one_pending
						ON ip_requests(company_id, ip_id)
						WHERE status = 'pending' AND type IN ('renewal', 'cancellation')`,
					`CREATE TABLE ip_history (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						action TEXT NOT NULL CHECK (action IN (
							'assigned', 'released', 'renewed', 'cancelled',
							'expired', 'requested', 'approved', 'rejected')),
						ip_id INTEGER,
						request_id INTEGER,
						company_id INTEGER,
						performed_by TEXT NOT NULL,
						timestamp TEXT NOT NULL,
						notes TEXT NOT NULL DEFAULT '',
						expires_at TEXT,
						mac_address TEXT NOT NULL DEFAULT '',
						operation_id TEXT NOT NULL,
						FOREIGN KEY (ip_id) REFERENCES ips(id),
						FOREIGN KEY (request_id) REFERENCES ip_requests(id),
						FOREIGN KEY (company_id) REFERENCES companies(id)
					)`,
					`CREATE TRIGGER ip_history_no_update BEFORE UPDATE ON ip_history
					BEGIN
						SELECT RAISE(ABORT, 'ip_history is append-only');
					END`,
					`CREATE TRIGGER ip_history_no_delete BEFORE DELETE ON ip_history
					BEGIN
						SELECT RAISE(ABORT, 'ip_history is append-only');
					END`,
				}

				for _, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
			Down: func(tx *sql.Tx) error {
				// Drop tables in reverse order due to foreign key constraints
				statements := []string{
					`DROP TRIGGER IF EXISTS ip_history_no_delete`,
					`DROP TRIGGER IF EXISTS ip_history_no_update`,
					`DROP TABLE IF EXISTS ip_history`,
					`DROP TABLE IF EXISTS ip_requests`,
					`DROP TABLE IF EXISTS ips`,
					`DROP TABLE IF EXISTS companies`,
					`DROP TABLE IF EXISTS rooms`,
				}
				for _, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
