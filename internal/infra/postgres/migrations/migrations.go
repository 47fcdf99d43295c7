package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema for the item bank and skill ratings. Each file
// named <version>_<name>.go registers one step.
var Migrations = migrate.NewMigrations()
