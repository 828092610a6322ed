// Seeds the database without starting the API: ensures the admin
// account exists and backfills legacy rows. Safe to run repeatedly.
package main

import (
	"context"

	"github.com/joho/godotenv"

	"github.com/kennethcanega/userdesk/internal/config"
	"github.com/kennethcanega/userdesk/internal/database"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/seed"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("seed")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	if err := seed.Run(context.Background(), db, log); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
	log.Info().Msg("seed complete")
}
