// Package testutil provides migrated SQLite databases and seed helpers for
// package tests.
//
// Seeding uses plain SQL so any package may import testutil from its own
// tests without an import cycle.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/telemetry-core/internal/infrastructure/database"
	_ "github.com/nerrad567/telemetry-core/migrations" // registers the schema
)

// OpenDB returns a fully migrated database in a temp directory. It is
// closed when the test ends.
func OpenDB(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "telemetry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

// SeedProject inserts a project owned by ownerID, with optional members.
func SeedProject(t testing.TB, db *database.DB, id, siteID, ownerID string, members ...string) {
	t.Helper()

	exec(t, db, `INSERT INTO projects (id, name, site_id, owner_id) VALUES (?, ?, ?, ?)`,
		id, "Project "+id, siteID, ownerID)
	for _, userID := range members {
		exec(t, db, `INSERT INTO project_users (project_id, user_id) VALUES (?, ?)`, id, userID)
	}
}

// SeedDevice inserts a device into an existing project.
func SeedDevice(t testing.TB, db *database.DB, id, projectID, externalID, deviceType string, online bool) {
	t.Helper()

	isOnline := 0
	if online {
		isOnline = 1
	}
	exec(t, db, `
		INSERT INTO devices (id, project_id, external_id, name, device_type, is_online, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, externalID, "Device "+externalID, deviceType, isOnline,
		time.Now().UTC().Format(time.RFC3339))
}

// CountRows returns the number of rows in table.
func CountRows(t testing.TB, db *database.DB, table string) int {
	t.Helper()

	var n int
	// Table names come from test code only.
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil { //nolint:gosec // test helper
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func exec(t testing.TB, db *database.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("seeding: %v", err)
	}
}
