package main

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/krishkalaria12/pix-stash/ai"
	"github.com/krishkalaria12/pix-stash/auth"
	"github.com/krishkalaria12/pix-stash/config"
	"github.com/krishkalaria12/pix-stash/database"
	handler "github.com/krishkalaria12/pix-stash/handlers"
	"github.com/krishkalaria12/pix-stash/middleware"
	"github.com/krishkalaria12/pix-stash/models"
	"github.com/krishkalaria12/pix-stash/repository"
	"github.com/krishkalaria12/pix-stash/router"
	"github.com/krishkalaria12/pix-stash/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	if err := database.Migrate(db, &models.User{}, &models.Image{}); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	store, err := storage.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}
	analyzer := ai.New(cfg, store, log)

	users := repository.NewUserRepository(db)
	images := repository.NewImageRepository(db)
	authSvc := auth.NewService(cfg, users)

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
	})

	authHandler := &handler.AuthHandler{Users: users, Auth: authSvc, Log: log}
	imageHandler := &handler.ImageHandler{
		Images:  images,
		Users:   users,
		Storage: store,
		AI:      analyzer,
		Log:     log,
	}
	router.SetupRoutes(app, authHandler, imageHandler, middleware.AuthMiddleware(authSvc))

	log.Info().Str("addr", cfg.Addr()).Msg("server listening")
	if err := app.Listen(cfg.Addr()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Environment == "development" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
