// Deletes refresh token rows that can never be used again. Meant to
// run from cron; the API works correctly without it, this only keeps
// the table small.
package main

import (
	"context"

	"github.com/joho/godotenv"

	"github.com/kennethcanega/userdesk/internal/config"
	"github.com/kennethcanega/userdesk/internal/database"
	"github.com/kennethcanega/userdesk/internal/modules/token"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/repository"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("cleanup")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	svc := token.NewService(db,
		repository.NewUserRepository(db),
		repository.NewRefreshTokenRepository(db),
		cfg.RefreshTTL,
	)

	if err := svc.DeleteExpired(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("cleanup failed")
	}
	log.Info().Msg("expired refresh tokens removed")
}
