package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"lascaux-backend/internal/common/config"
	"lascaux-backend/internal/common/logger"
	authservice "lascaux-backend/internal/features/auth/service"
	"lascaux-backend/internal/features/auth/token"
	"lascaux-backend/internal/features/user/repository"
	"lascaux-backend/internal/features/user/repository/factory"
	userservice "lascaux-backend/internal/features/user/service"
	router "lascaux-backend/internal/http"
	"lascaux-backend/internal/workers"
)

// @title           Lascaux API
// @version         1.0
// @description     Wallet-based accounts and JWT sessions for the Lascaux art platform.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description "Bearer " followed by an access token

// @tag.name auth
// @tag.description Signup, signin, token verification, refresh and signout

// @tag.name users
// @tag.description Profiles, follows and role management

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init("lascaux-backend", cfg.Debug, cfg.IsProduction())

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.InsecureSecret() {
		logger.Warn().Msg("SECRET_KEY is the development default; do not use it outside local setups")
	}

	logger.Info().
		Str("env", cfg.AppEnv).
		Str("store", cfg.Store.Driver).
		Bool("debug", cfg.Debug).
		Msg("Starting Lascaux backend")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := factory.Open(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open credential store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close credential store")
		}
	}()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if purger, ok := store.RefreshTokens().(repository.Purger); ok {
		go workers.NewTokenSweeper(purger, cfg.Store.SweepInterval).Start(workerCtx)
	}

	codec := token.NewCodec(cfg.Auth.SecretKey)
	authSvc := authservice.NewAuthService(store, codec, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	userSvc := userservice.NewUserService(store.Users())

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.NewRouter(router.Deps{
		Config: cfg,
		Store:  store,
		Codec:  codec,
		Auth:   authSvc,
		Users:  userSvc,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	stopWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
