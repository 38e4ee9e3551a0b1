// Package migrations holds the Postgres schema as bun migrations. Each
// migration lives in its own file; bun derives the version from the file name.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
