// Package migrations embeds the delivery journal schema.
package migrations

import "embed"

// Directories inside FS for each database driver.
const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)

// FS holds the migrations of every driver.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
