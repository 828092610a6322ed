package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kennethcanega/userdesk/internal/config"
	"github.com/kennethcanega/userdesk/internal/database"
	"github.com/kennethcanega/userdesk/internal/keycloak"
	"github.com/kennethcanega/userdesk/internal/middleware"
	"github.com/kennethcanega/userdesk/internal/modules/auth"
	"github.com/kennethcanega/userdesk/internal/modules/token"
	"github.com/kennethcanega/userdesk/internal/modules/users"
	jwtsvc "github.com/kennethcanega/userdesk/internal/pkg/jwt"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/repository"
	"github.com/kennethcanega/userdesk/internal/router"
	"github.com/kennethcanega/userdesk/internal/seed"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("api")

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

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)

	jwtService := jwtsvc.New(cfg.JWTIssuer, cfg.JWTSecret, cfg.AccessTTL)
	tokenService := token.NewService(db, userRepo, tokenRepo, cfg.RefreshTTL)

	var (
		idp    auth.IdentityProvider
		broker users.DirectoryBroker
		authMW gin.HandlerFunc
	)
	if cfg.AuthMode == config.ModeKeycloak {
		kc := keycloak.New(cfg.Keycloak, log)
		idp = kc
		broker = kc
		authMW = middleware.KeycloakAuth(kc, userRepo)
	} else {
		authMW = middleware.JWTAuth(jwtService, userRepo)
	}

	authService := auth.NewService(userRepo, tokenService, jwtService, idp)
	authHandler := auth.NewHandler(authService, log, cfg.CookieSecure)

	usersService := users.NewService(userRepo, broker, log)
	usersHandler := users.NewHandler(usersService, log)

	if cfg.ProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.New(router.Deps{
		Log:            log,
		Auth:           authHandler,
		Users:          usersHandler,
		AuthMW:         authMW,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("auth_mode", string(cfg.AuthMode)).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
