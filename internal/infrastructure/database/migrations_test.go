package database

import (
	"context"
	"embed"
	"testing"
	"time"
)

// testMigrationsDir is the directory containing test migration files.
// The fixtures mirror the bridge schema: a single-row session table and a
// zone readings table, plus a rollback file the loader must ignore.
const testMigrationsDir = "testdata"

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// useTestMigrations points the package at the fixture migrations for the
// duration of one test.
func useTestMigrations(t *testing.T) {
	t.Helper()

	origFS := MigrationsFS
	origDir := MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})

	MigrationsFS = testMigrationsFS
	MigrationsDir = testMigrationsDir
}

// TestMigrate verifies migration application against the bridge-shaped
// fixture schema.
func TestMigrate(t *testing.T) {
	useTestMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Both fixture tables exist.
	for _, table := range []string{"nexia_session", "zone_readings"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s not created: %v", table, err)
		}
	}

	// Both migrations are recorded; the .down.sql fixture is not.
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		t.Fatalf("appliedVersions() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}

	// Running again should be idempotent.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrate_SchemaUsable verifies the migrated schema accepts the rows
// the session store and history repository write.
func TestMigrate_SchemaUsable(t *testing.T) {
	useTestMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO nexia_session (id, mobile_id, api_key, updated_at) VALUES (1, ?, ?, ?)",
		900001, "test-api-key", time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("inserting session row: %v", err)
	}

	// The session table is single-row by constraint.
	_, err = db.ExecContext(ctx,
		"INSERT INTO nexia_session (id, mobile_id, api_key, updated_at) VALUES (2, ?, ?, ?)",
		900002, "other-key", time.Now().UTC().Format(time.RFC3339),
	)
	if err == nil {
		t.Error("second session row should violate the id = 1 check")
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO zone_readings (id, zone_id, thermostat_id, temperature, recorded_at) VALUES (?, ?, ?, ?, ?)",
		"reading-1", 83261002, 2059652, 21.5, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("inserting zone reading: %v", err)
	}
}

// TestMigrateNoMigrations verifies behaviour with no migrations.
func TestMigrateNoMigrations(t *testing.T) {
	origFS := MigrationsFS
	origDir := MigrationsDir
	defer func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	}()

	var emptyFS embed.FS
	MigrationsFS = emptyFS
	MigrationsDir = "."

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

// TestLoadMigrations verifies ordering and that rollback files are skipped.
func TestLoadMigrations(t *testing.T) {
	useTestMigrations(t)

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations (down file skipped), got %d", len(migrations))
	}
	if migrations[0].Version != "20260830_120000" || migrations[1].Version != "20260830_120500" {
		t.Errorf("migrations out of order: %s, %s", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Name != "session_table" {
		t.Errorf("Name = %q, want %q", migrations[0].Name, "session_table")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantOk      bool
	}{
		{
			name:        "valid forward migration",
			filename:    "20260830_120000_initial_schema.up.sql",
			wantVersion: "20260830_120000",
			wantOk:      true,
		},
		{
			name:     "rollback file skipped",
			filename: "20260830_120000_initial_schema.down.sql",
			wantOk:   false,
		},
		{
			name:     "not sql file",
			filename: "readme.txt",
			wantOk:   false,
		},
		{
			name:     "missing direction",
			filename: "20260830_120000_initial_schema.sql",
			wantOk:   false,
		},
		{
			name:     "invalid format",
			filename: "invalid.up.sql",
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Errorf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && version != tt.wantVersion {
				t.Errorf("version = %v, want %v", version, tt.wantVersion)
			}
		})
	}
}

// TestExtractMigrationName verifies name extraction.
func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260830_120000_initial_schema.up.sql", "initial_schema"},
		{"20260830_120500_add_retention_index.up.sql", "add_retention_index"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := extractMigrationName(tt.filename)
			if got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
