package sqlite

import "database/sql"

func RunMigrations(db *sql.DB) error {
	stmts := []string{

		`CREATE TABLE IF NOT EXISTS payment_links (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL,
			provider_reference TEXT,
			amount_cents INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			checkout_url TEXT NOT NULL DEFAULT '',
			customer_email TEXT NOT NULL DEFAULT '',
			expires_at DATETIME,
			created_at DATETIME NOT NULL,
			paid_at DATETIME,
			updated_at DATETIME NOT NULL,
			UNIQUE (provider, provider_reference)
		);`,

		`CREATE INDEX IF NOT EXISTS idx_payment_links_status_created
			ON payment_links (status, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
