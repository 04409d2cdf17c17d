package database

import (
	"context"
	"database/sql"
	"fmt"
)

// statements create every table the application uses.  They are written in
// the subset of SQL shared by MySQL and SQLite: timestamps are Unix
// milliseconds and JSON bodies are plain text.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection VARCHAR(191) NOT NULL,
		id         VARCHAR(191) NOT NULL,
		data       MEDIUMTEXT   NOT NULL,
		created_at BIGINT       NOT NULL,
		updated_at BIGINT       NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE TABLE IF NOT EXISTS identities (
		uid            VARCHAR(64)  NOT NULL PRIMARY KEY,
		email          VARCHAR(191) NOT NULL,
		display_name   VARCHAR(191) NOT NULL DEFAULT '',
		password_hash  VARCHAR(255) NOT NULL DEFAULT '',
		disabled       BOOLEAN      NOT NULL DEFAULT FALSE,
		claims         TEXT         NOT NULL,
		created_at     BIGINT       NOT NULL,
		updated_at     BIGINT       NOT NULL,
		last_sign_in_at BIGINT      NULL,
		UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_hash VARCHAR(64) NOT NULL PRIMARY KEY,
		uid        VARCHAR(64) NOT NULL,
		expires_at BIGINT      NOT NULL,
		revoked_at BIGINT      NULL,
		created_at BIGINT      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS password_resets (
		token_hash VARCHAR(64) NOT NULL PRIMARY KEY,
		uid        VARCHAR(64) NOT NULL,
		expires_at BIGINT      NOT NULL,
		used_at    BIGINT      NULL
	)`,
}

// Migrate creates missing tables.  It is idempotent and safe to run on
// every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
