package sqlite

import (
	"database/sql"
	"fmt"
)

// migration represents a single database migration
type migration struct {
	version int
	name    string
	up      string
}

// migrations is the ordered list of all database migrations
// Each migration should be idempotent and safe to run multiple times
var migrations = []migration{
	{
		version: 1,
		name:    "create_groups_table",
		up: `
			CREATE TABLE IF NOT EXISTS groups (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				slug TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				mode TEXT NOT NULL,
				primary_language TEXT,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP
			);
		`,
	},
	{
		version: 2,
		name:    "create_posts_table",
		up: `
			CREATE TABLE IF NOT EXISTS posts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
				slug TEXT NOT NULL,
				mode TEXT NOT NULL,
				primary_language TEXT,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP,
				UNIQUE (group_id, slug)
			);
		`,
	},
	{
		version: 3,
		name:    "create_post_versions_table",
		up: `
			CREATE TABLE IF NOT EXISTS post_versions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
				version_number INTEGER NOT NULL,
				created_at TIMESTAMP NOT NULL,
				UNIQUE (post_id, version_number)
			);
		`,
	},
	{
		version: 4,
		name:    "create_post_contents_table",
		up: `
			CREATE TABLE IF NOT EXISTS post_contents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				version_id INTEGER NOT NULL REFERENCES post_versions(id) ON DELETE CASCADE,
				language TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'draft',
				url_slug TEXT NOT NULL DEFAULT '',
				previous_url_slugs TEXT NOT NULL DEFAULT '[]',
				allow_version_access INTEGER NOT NULL DEFAULT 0,
				primary_language TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				published_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP,
				UNIQUE (version_id, language)
			);

			CREATE INDEX IF NOT EXISTS idx_post_contents_status
			ON post_contents(status);
		`,
	},
}

// runMigrations executes all pending migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion := 0
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Run pending migrations
	for _, m := range migrations {
		if m.version <= currentVersion {
			continue // Already applied
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		_, err = tx.Exec(m.up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			m.version,
			m.name,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// Migrate applies pending schema migrations to an already open database.
func Migrate(db *sql.DB) error {
	return runMigrations(db)
}
