// Package migrations embeds SQL migration files into the binary.
//
// The thermostat service runs migrations at startup without needing the SQL
// files on the filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
