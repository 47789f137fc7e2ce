package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// testMigrations is a two-step schema used to exercise the runner.
var testMigrations = fstest.MapFS{
	"sql/20260101_000000_create_beds.up.sql": {Data: []byte(
		`CREATE TABLE beds (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
	"sql/20260101_000000_create_beds.down.sql": {Data: []byte(
		`DROP TABLE beds;`)},
	"sql/20260102_000000_add_valves.up.sql": {Data: []byte(
		`CREATE TABLE valves (id INTEGER PRIMARY KEY, bed_id INTEGER REFERENCES beds(id));`)},
	"sql/20260102_000000_add_valves.down.sql": {Data: []byte(
		`DROP TABLE valves;`)},
	"sql/README.md": {Data: []byte("ignored")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testMigrations, "sql"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"beds", "valves"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx, testMigrations, "sql")
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// Running again is a no-op.
	if err := db.Migrate(ctx, testMigrations, "sql"); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations, "sql"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations, "sql"); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "valves") {
		t.Error("latest migration not rolled back")
	}
	if !tableExists(t, db, "beds") {
		t.Error("earlier migration rolled back too")
	}

	applied, pending, err := db.GetMigrationStatus(ctx, testMigrations, "sql")
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied/pending = %d/%d, want 1/1", len(applied), len(pending))
	}
}

func TestMigrate_FailureRollsBackThatMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	broken := fstest.MapFS{
		"sql/20260101_000000_ok.up.sql":     {Data: []byte(`CREATE TABLE ok_table (id INTEGER);`)},
		"sql/20260102_000000_broken.up.sql": {Data: []byte(`CREATE TABLE broken (; `)},
	}

	if err := db.Migrate(ctx, broken, "sql"); err == nil {
		t.Fatal("Migrate() expected error")
	}
	if !tableExists(t, db, "ok_table") {
		t.Error("migration before the failure should stay committed")
	}

	applied, _, err := db.GetMigrationStatus(ctx, broken, "sql")
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %d, want 1", len(applied))
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, fstest.MapFS{}, "missing"); err != nil {
		t.Errorf("Migrate() with empty FS error = %v", err)
	}
	if err := db.Migrate(ctx, nil, "."); err != nil {
		t.Errorf("Migrate() with nil FS error = %v", err)
	}
	if err := db.MigrateDown(ctx, fstest.MapFS{}, "missing"); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestLoadMigrations_Order(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations, "sql")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Name != "create_beds" || migrations[1].Name != "add_valves" {
		t.Errorf("order = %s, %s", migrations[0].Name, migrations[1].Name)
	}
	if migrations[0].DownSQL == "" {
		t.Error("down SQL not loaded")
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: "1"}, {Version: "2"}, {Version: "3"}}
	applied := []MigrationRecord{{Version: "1"}, {Version: "3"}}

	got := Pending(all, applied)
	if len(got) != 1 || got[0].Version != "2" {
		t.Errorf("Pending() = %v, want [2]", got)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"valid up", "20261015_120000_irrigation_schema.up.sql", "20261015_120000", true, true},
		{"valid down", "20261015_120000_irrigation_schema.down.sql", "20261015_120000", false, true},
		{"not sql", "readme.txt", "", false, false},
		{"missing direction", "20261015_120000_irrigation_schema.sql", "", false, false},
		{"invalid format", "invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20261015_120000_irrigation_schema.up.sql", "irrigation_schema"},
		{"20261015_120000_irrigation_schema.down.sql", "irrigation_schema"},
		{"20261016_090000_add_index.up.sql", "add_index"},
	}

	for _, tt := range tests {
		if got := extractMigrationName(tt.filename); got != tt.want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
