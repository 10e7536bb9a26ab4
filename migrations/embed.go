// Package migrations embeds the SQL schema into the binary.
//
// Importing this package (usually for side effects) registers the files
// with the database package so Migrate works without SQL on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
