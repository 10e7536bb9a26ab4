package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "sql"
	t.Cleanup(func() { MigrationsFS, MigrationsDir = prevFS, prevDir })
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/20260118_120000_create_sites.up.sql": {Data: []byte(
			"CREATE TABLE test_sites (id TEXT PRIMARY KEY, name TEXT NOT NULL);")},
		"sql/20260118_120000_create_sites.down.sql": {Data: []byte(
			"DROP TABLE test_sites;")},
		"sql/20260118_130000_add_region.up.sql": {Data: []byte(
			"ALTER TABLE test_sites ADD COLUMN region TEXT;")},
		"sql/20260118_140000_orphan.down.sql": {Data: []byte("SELECT 1;")},
		"sql/README.md":                       {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return count == 1
}

func TestMigrate_AppliesInOrder(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_sites") {
		t.Fatal("test_sites not created")
	}
	if _, err := db.Exec("INSERT INTO test_sites (id, name, region) VALUES ('s1', 'Site', 'eu')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("status = %d applied / %d pending, want 2/0", len(applied), len(pending))
	}
	if applied[0].Version != "20260118_120000" {
		t.Errorf("first version = %q", applied[0].Version)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}
}

func TestMigrate_FailureStopsAndResumes(t *testing.T) {
	files := testMigrations()
	files["sql/20260118_130000_add_region.up.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE missing ADD COLUMN x TEXT;")}
	useMigrations(t, files)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}
	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Fatalf("status = %d/%d, want 1 applied 1 pending", len(applied), len(pending))
	}

	files["sql/20260118_130000_add_region.up.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE test_sites ADD COLUMN region TEXT;")}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() after fix error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	files := testMigrations()
	delete(files, "sql/20260118_130000_add_region.up.sql")
	useMigrations(t, files)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_sites") {
		t.Error("test_sites still exists after MigrateDown")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() expected error when latest migration has no down SQL")
	}
}

func TestMigrate_NilFS(t *testing.T) {
	prev := MigrationsFS
	MigrationsFS = nil
	t.Cleanup(func() { MigrationsFS = prev })

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_000001_core_schema.up.sql", "20260301_000001", true, true},
		{"20260301_000001_core_schema.down.sql", "20260301_000001", false, true},
		{"20260301_000001_core_schema.sql", "", false, false},
		{"embed.go", "", false, false},
		{"nounderscore.up.sql", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, up, ok := parseMigrationFilename(tt.name)
			if version != tt.wantVersion || up != tt.wantUp || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = %q, %v, %v; want %q, %v, %v",
					tt.name, version, up, ok, tt.wantVersion, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	if got := extractMigrationName("20260301_000002_history_tables.up.sql"); got != "history_tables" {
		t.Errorf("extractMigrationName() = %q, want history_tables", got)
	}
}
