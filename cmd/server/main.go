// Package main is the entry point for the HR portal server. It loads
// configuration, connects to MariaDB (and Redis when a store needs it),
// applies migrations, wires the security core and serves HTTP until
// interrupted.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/hrportal/internal/app"
	"github.com/keyxmakerx/hrportal/internal/config"
	"github.com/keyxmakerx/hrportal/internal/database"
	"github.com/keyxmakerx/hrportal/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	setupLogging(cfg)

	if err := run(cfg); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting hr portal",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	shutdownTracing := telemetry.Setup(ctx, app.ServiceName, cfg.Telemetry)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("flushing traces", slog.Any("error", err))
		}
	}()

	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to mariadb")

	if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Session.Store == config.StoreRedis || cfg.Throttle.Store == config.StoreRedis {
		rdb, err = database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		slog.Info("connected to redis")
	}

	application, err := app.New(cfg, db, rdb)
	if err != nil {
		return err
	}
	if err := application.RegisterRoutes(ctx); err != nil {
		return err
	}

	srv := application.Server()
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

// setupLogging installs the global slog handler: readable text in
// development, JSON for log aggregation elsewhere. LOG_LEVEL overrides the
// default level.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			level = parsed
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
