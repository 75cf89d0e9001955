package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the ordered schema statements for the quote catalog
// and the assignment table. Statements must stay idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS authors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		author_id TEXT NOT NULL REFERENCES authors(id),
		category_id TEXT NOT NULL REFERENCES categories(id),
		gradient_start TEXT,
		gradient_end TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS quote_assignments (
		id TEXT PRIMARY KEY,
		identity_key TEXT NOT NULL,
		day TEXT NOT NULL,
		quote_id TEXT NOT NULL REFERENCES quotes(id),
		viewed BOOLEAN NOT NULL DEFAULT FALSE,
		viewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT quote_assignments_identity_day UNIQUE (identity_key, day)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quotes_created_at ON quotes (created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_quote_assignments_day ON quote_assignments (day)`,
}

// Apply runs all schema migrations in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
