package main

import (
	"github.com/charmbracelet/log"

	"focusflow/backend/internal/config"
	"focusflow/backend/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal("open database", "err", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatal("run migrations", "err", err)
	}

	log.Info("migrations applied")
}
