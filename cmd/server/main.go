// Package main is the entry point for the famledger household ledger backend.
//
// It keeps income and expense records in a local JSON file or SQLite
// database, mirrors them to a file in a GitHub repository, and serves the
// HTTP API used by the web front end.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/famledger/internal/config"
	"github.com/aristath/famledger/internal/di"
	"github.com/aristath/famledger/internal/server"
	"github.com/aristath/famledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty || cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("version", server.Version).
		Str("environment", cfg.Environment).
		Str("data_dir", cfg.DataDir).
		Msg("Starting famledger")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Warm the record snapshot so the first request does not pay for the remote round trip
	loaded := container.RecordsService.Refresh(ctx)
	log.Info().Int("records", len(loaded.Records)).Str("location", loaded.Location).Msg("Records loaded")

	srv := server.New(server.Config{
		Log:      log,
		Config:   cfg,
		Bus:      container.EventBus,
		Records:  container.RecordsService,
		Sessions: container.ImportSessions,
		Secrets:  container.SecretManager,
		Resolver: container.CredentialResolver,
		Backups:  container.BackupService,
		Offsite:  container.OffsiteService,
		DB:       container.RecordsDB,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	container.Scheduler.Start()

	// Take a first snapshot right away instead of waiting for the schedule
	go func() {
		if err := container.Scheduler.RunNow(jobs.Snapshot); err != nil {
			log.Warn().Err(err).Msg("Initial snapshot failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
