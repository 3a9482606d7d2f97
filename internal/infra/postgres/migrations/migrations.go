package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema and seed migration, registered by file name order.
var Migrations = migrate.NewMigrations()
