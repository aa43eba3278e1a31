package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dav22-wa/uni-mood-share/internal/api"
	"github.com/dav22-wa/uni-mood-share/internal/blob"
	"github.com/dav22-wa/uni-mood-share/internal/chat"
	"github.com/dav22-wa/uni-mood-share/internal/config"
	"github.com/dav22-wa/uni-mood-share/internal/fanout"
	"github.com/dav22-wa/uni-mood-share/internal/handlers"
	"github.com/dav22-wa/uni-mood-share/internal/presence"
	"github.com/dav22-wa/uni-mood-share/internal/rooms"
	"github.com/dav22-wa/uni-mood-share/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the message store: PostgreSQL when configured,
	// SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer db.Close()

	// Initialize Redis (sessions and rate limiting)
	redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisStore.Close()
	logger.Info().Msg("connected to Redis")

	// Initialize the fan-out driver
	var notifier fanout.Notifier
	switch cfg.FanoutDriver {
	case "redis":
		notifier = fanout.NewRedisNotifier(redisStore.Client())
		logger.Info().Msg("fanout over Redis pub/sub")
	case "amqp":
		notifier, err = fanout.NewAMQPNotifier(ctx, cfg.AMQPURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp connection failed")
		}
		logger.Info().Msg("fanout over AMQP")
	case "memory":
		notifier = fanout.NewHub()
		logger.Info().Msg("fanout in process")
	default:
		logger.Fatal().Str("driver", cfg.FanoutDriver).Msg("unknown fanout driver")
	}
	defer notifier.Close()

	// Initialize blob storage
	blobs, err := blob.NewDiskStore(cfg.BlobDir, "/blobs")
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store init failed")
	}

	// Wire up services
	resolver := rooms.NewResolver(db)
	chatSvc := chat.NewService(db, notifier)
	receipts := chat.NewReceipts(db, notifier)
	moderation := chat.NewModeration(db)
	tracker := presence.NewTracker(notifier, cfg.PresenceTTL)
	defer tracker.Close()

	h := handlers.NewHandler(db, redisStore, resolver, chatSvc, receipts, moderation, tracker, notifier, blobs)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		Logger:             logger,
		DB:                 db,
		Redis:              redisStore,
		Handler:            h,
		RateLimitWhitelist: cfg.RateLimitWhitelist,
	})

	// Create server. WriteTimeout stays unset: SSE streams outlive any
	// fixed deadline and are torn down by client disconnect instead.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting mood-share server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
