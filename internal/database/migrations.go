package database

import (
	"embed"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the SQL migrations that gorm's AutoMigrate cannot
// express, most importantly the partial unique index that makes
// "at most one active connection per client" a store-level guarantee.
func (s *DB) RunMigrations() (int, error) {
	log := s.log.Function("RunMigrations")

	sqlDB, err := s.SQL.DB()
	if err != nil {
		return 0, log.Err("failed to get database from GORM", err)
	}

	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}

	applied, err := migrate.Exec(sqlDB, "sqlite3", source, migrate.Up)
	if err != nil {
		return 0, log.Err("failed to apply migrations", err)
	}

	if applied > 0 {
		log.Info("Applied migrations", "count", applied)
	}
	return applied, nil
}
