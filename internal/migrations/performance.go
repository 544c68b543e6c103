package migrations

import (
	"database/sql"
)

// GetPerformanceMigrations returns performance optimization migrations
func GetPerformanceMigrations() []Migration {
	return []Migration{
		{
			Version: 2,
			Name:    "add_query_indices",
			Up: func(tx *sql.Tx) error {
				indices := []string{
					"CREATE INDEX IF NOT EXISTS idx_ips_room_id ON ips(room_id)",
					"CREATE INDEX IF NOT EXISTS idx_ips_company_id ON ips(company_id)",
					"CREATE INDEX IF NOT EXISTS idx_ips_status_expires_at ON ips(status, expires_at)",
					"CREATE INDEX IF NOT EXISTS idx_ips_address_num ON ips(address_num)",
					"CREATE INDEX IF NOT EXISTS idx_companies_room_id ON companies(room_id)",
					"CREATE INDEX IF NOT EXISTS idx_ip_requests_company_id ON ip_requests(company_id)",
					"CREATE INDEX IF NOT EXISTS idx_ip_requests_status ON ip_requests(status)",
					"CREATE INDEX IF NOT EXISTS idx_ip_history_timestamp ON ip_history(timestamp, id)",
					"CREATE INDEX IF NOT EXISTS idx_ip_history_ip_id ON ip_history(ip_id, timestamp)",
					"CREATE INDEX IF NOT EXISTS idx_ip_history_company_id ON ip_history(company_id, timestamp)",
				}

				for _, indexSQL := range indices {
					if _, err := tx.Exec(indexSQL); err != nil {
						return err
					}
				}

				return nil
			},
			Down: func(tx *sql.Tx) error {
				indices := []string{
					"DROP INDEX IF EXISTS idx_ips_room_id",
					"DROP INDEX IF EXISTS idx_ips_company_id",
					"DROP INDEX IF EXISTS idx_ips_status_expires_at",
					"DROP INDEX IF EXISTS idx_ips_address_num",
					"DROP INDEX IF EXISTS idx_companies_room_id",
					"DROP INDEX IF EXISTS idx_ip_requests_company_id",
					"DROP INDEX IF EXISTS idx_ip_requests_status",
					"DROP INDEX IF EXISTS idx_ip_history_timestamp",
					"DROP INDEX IF EXISTS idx_ip_history_ip_id",
					"DROP INDEX IF EXISTS idx_ip_history_company_id",
				}

				for _, dropSQL := range indices {
					if _, err := tx.Exec(dropSQL); err != nil {
						return err
					}
				}

				return nil
			},
		},
	}
}
