package repository

import (
	"context"
	"fmt"
)

var schema = map[Dialect][]string{
	Postgres: {
		`CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			tg_id         BIGINT NOT NULL UNIQUE,
			username      TEXT NOT NULL DEFAULT '',
			free_uses     INTEGER NOT NULL DEFAULT 2,
			is_pro        BOOLEAN NOT NULL DEFAULT FALSE,
			expiry_date   TIMESTAMPTZ NULL,
			template_text TEXT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			tg_id         INTEGER NOT NULL UNIQUE,
			username      TEXT NOT NULL DEFAULT '',
			free_uses     INTEGER NOT NULL DEFAULT 2,
			is_pro        BOOLEAN NOT NULL DEFAULT 0,
			expiry_date   TIMESTAMP NULL,
			template_text TEXT NULL,
			created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
}

// Migrate creates the schema if missing. Statements are idempotent.
func Migrate(ctx context.Context, db *DB) error {
	stmts, ok := schema[db.Dialect]
	if !ok {
		return fmt.Errorf("no schema for dialect %q", db.Dialect)
	}
	for _, s := range stmts {
		if _, err := db.SQL.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
