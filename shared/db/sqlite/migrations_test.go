package sqlite

import (
	"path/filepath"
	"testing"
)

func TestRunMigrations(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &SQLiteConfig{
		Path: dbPath,
	}

	database := NewSQLiteDB(cfg)
	err := database.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer database.Close()

	db := database.DB()

	for _, table := range []string{"schema_migrations", "groups", "posts", "post_versions", "post_contents"} {
		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check %s table: %v", table, err)
		}
		if count != 1 {
			t.Errorf("%s table not created", table)
		}
	}

	// Verify index exists
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_post_contents_status'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to check index: %v", err)
	}
	if count != 1 {
		t.Errorf("idx_post_contents_status index not created")
	}

	// Verify migrations were recorded
	var version int
	var name string
	err = db.QueryRow("SELECT version, name FROM schema_migrations WHERE version = 1").Scan(&version, &name)
	if err != nil {
		t.Fatalf("Failed to query schema_migrations: %v", err)
	}
	if name != "create_groups_table" {
		t.Errorf("name = %q, want %q", name, "create_groups_table")
	}

	err = db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		t.Fatalf("Failed to query schema_migrations: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &SQLiteConfig{
		Path: dbPath,
	}

	// Connect first time
	database := NewSQLiteDB(cfg)
	err := database.Connect()
	if err != nil {
		t.Fatalf("First Connect() error = %v", err)
	}
	database.Close()

	// Connect second time - migrations should not fail
	database = NewSQLiteDB(cfg)
	err = database.Connect()
	if err != nil {
		t.Fatalf("Second Connect() error = %v", err)
	}
	defer database.Close()

	db := database.DB()

	// Verify migration was only recorded once
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = 1").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query schema_migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("migration recorded %d times, want 1", count)
	}
}

func TestPostsNaturalKeys(t *testing.T) {
	database := NewSQLiteDB(&SQLiteConfig{Path: ":memory:"})
	if err := database.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer database.Close()

	db := database.DB()

	_, err := db.Exec(`INSERT INTO groups (slug, name, mode, created_at) VALUES ('blog', 'Blog', 'slug', CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Fatalf("Failed to insert group: %v", err)
	}

	_, err = db.Exec(`INSERT INTO posts (group_id, slug, mode, created_at) VALUES (1, 'hello', 'slug', CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Fatalf("Failed to insert post: %v", err)
	}

	// Same group + slug must be rejected
	_, err = db.Exec(`INSERT INTO posts (group_id, slug, mode, created_at) VALUES (1, 'hello', 'slug', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("duplicate (group_id, slug) should violate the unique constraint")
	}

	// Foreign keys are enforced
	_, err = db.Exec(`INSERT INTO post_versions (post_id, version_number, created_at) VALUES (42, 1, CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("post_versions row with unknown post_id should be rejected")
	}
}
