package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewmate/internal/app"
	"crewmate/internal/auth"
	"crewmate/internal/config"
	"crewmate/internal/store"
	"crewmate/internal/store/memory"
	"crewmate/internal/store/postgres"
	"crewmate/internal/store/redis"
	"crewmate/internal/store/sqlite"
	httpTransport "crewmate/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var logger *slog.Logger
	logOpts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, logOpts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, logOpts))
	}

	slog.SetDefault(logger)

	logger.Info("starting crewmate game server",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	docs, err := openDocuments(cfg.Storage)
	if err != nil {
		cancel()
		logger.Error("open document store", "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	eph, err := openEphemeral(ctx, cfg.Storage)
	cancel()
	if err != nil {
		logger.Error("open ephemeral store", "error", err)
		os.Exit(1)
	}
	defer eph.Close()

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, nil)
	if err != nil {
		logger.Error("create token issuer", "error", err)
		os.Exit(1)
	}

	// Create game hub
	hub := app.NewHub(docs, eph, app.HubConfig{
		Session: app.SessionConfig{
			Engine: app.EngineConfig{
				MinPlayers:   cfg.Game.MinPlayers,
				TickInterval: cfg.Game.TickInterval,
			},
			Sync: app.SyncConfig{
				GuardInterval: cfg.Sync.GuardInterval,
				StaleAfter:    cfg.Sync.StaleAfter,
			},
			PresenceInterval: cfg.Game.PresenceEvery,
		},
		RoomCodeLength:  cfg.Game.RoomCodeLength,
		MaxPlayers:      cfg.Game.MaxPlayers,
		StaleRoomAfter:  cfg.Game.StaleRoomAfter,
		CleanupInterval: cfg.Game.CleanupInterval,
	}, logger)
	defer hub.Close()

	// Create HTTP server
	server := httpTransport.NewServer(cfg, hub, issuer, logger)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

type documentStore interface {
	store.DocumentStore
	io.Closer
}

type ephemeralStore interface {
	store.EphemeralStore
	io.Closer
}

func openDocuments(cfg config.StorageConfig) (documentStore, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewDocumentStore(), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	case "postgres":
		return postgres.Open(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openEphemeral(ctx context.Context, cfg config.StorageConfig) (ephemeralStore, error) {
	if cfg.RedisAddr == "" {
		return memory.NewEphemeralStore(), nil
	}
	return redis.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.EphemeralTTL)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
