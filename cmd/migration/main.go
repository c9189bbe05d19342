package main

import (
	"os"
	"server/cmd/migration/initialize"
	"server/cmd/migration/seed"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
)

// Applies schema migrations and initializes tables. Pass "seed" to also load
// development data.
func main() {
	log := logger.New("migration")

	config, err := config.InitConfig()
	if err != nil {
		log.Er("failed to initialize config", err)
		os.Exit(1)
	}

	db, err := database.New(config)
	if err != nil {
		log.Er("failed to open database", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := initialize.InitializeTables(db.SQL, config, log); err != nil {
		log.Er("failed to initialize tables", err)
		os.Exit(1)
	}

	applied, err := db.RunMigrations()
	if err != nil {
		log.Er("failed to run migrations", err)
		os.Exit(1)
	}
	log.Info("Migrations applied", "count", applied)

	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := seed.Seed(db.SQL, config, log); err != nil {
			log.Er("failed to seed", err)
			os.Exit(1)
		}
	}
}
