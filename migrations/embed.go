// Package migrations embeds the audit log schema into the binary so the
// daemon can migrate without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/tophat-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
