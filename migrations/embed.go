// Package migrations embeds the SQL schema for both storage backends so the
// binary can migrate without the files on disk.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Directories within FS, one per storage driver.
const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
