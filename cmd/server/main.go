// Command server runs the chat-support backend: the widget/message API, the
// dashboard listing and change-feed endpoints, the automation webhook, and
// the scheduled retention cleanup.
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
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/automize/chat-support-backend/internal/config"
	httpapi "github.com/automize/chat-support-backend/internal/http"
	"github.com/automize/chat-support-backend/internal/observability"
	"github.com/automize/chat-support-backend/internal/repo"
	"github.com/automize/chat-support-backend/internal/services"
	"github.com/automize/chat-support-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	// Retention cleanup on a cron schedule.
	var scheduler *cron.Cron
	if cfg.Retention.Enabled {
		cleanup := &services.CleanupService{DB: db, RetentionDays: cfg.Retention.Days}
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Retention.Schedule, func() {
			jctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_, _ = cleanup.Run(jctx)
		}); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Retention.Schedule).Msg("invalid retention schedule")
		}
		scheduler.Start()
		log.Info().Str("schedule", cfg.Retention.Schedule).Int("days", cfg.Retention.Days).Msg("retention cleanup scheduled")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if scheduler != nil {
		cronCtx := scheduler.Stop()
		<-cronCtx.Done()
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
