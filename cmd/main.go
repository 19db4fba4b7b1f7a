// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
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
	"strings"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/clock"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/config"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/database"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/handler"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/ledger"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/repository"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/reservation"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/service"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(&cfg, args); err != nil {
		return err
	}

	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Open the store ─────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Wire up layers ────────────────────────────────────────────────
	clk := clock.NewSystem()
	led := ledger.New(cfg.LockTimeout)
	dir := reservation.NewDirectory(led, store,
		reservation.WithClock(clk),
		reservation.WithLogger(logger),
		reservation.WithLockTimeout(cfg.LockTimeout),
	)
	events := service.NewEventService(store, led, clk, logger)
	if err := events.Load(ctx); err != nil {
		return err
	}
	if err := dir.Load(ctx); err != nil {
		return err
	}
	svc := handler.Services{
		Events:       events,
		Reservations: service.NewReservationService(dir, events),
		Tickets:      service.NewTicketIssuer(dir, events, clk),
		Stats:        service.NewStatsService(events, dir, clk),
	}

	// ── 3. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.NewRouter(svc, cfg.CORSOrigins, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// applyFlags lets command-line flags override the environment.
func applyFlags(cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("seat-reservations", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: memory, postgres or sqlite")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "maximum wait for an event or reservation lock")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return cfg.Validate()
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// openStore returns the configured store and a func that releases it.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to postgres", "host", cfg.Postgres.Host, "db", cfg.Postgres.DBName)
		return repository.NewPostgres(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigrateSQLite(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("opened sqlite", "path", cfg.SQLitePath)
		return repository.NewSQLite(db), func() { _ = db.Close() }, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemory(), func() {}, nil
	}
}
