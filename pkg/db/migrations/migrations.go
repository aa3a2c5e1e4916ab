// Package migrations registers the schema migrations run by db.Migrate.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
