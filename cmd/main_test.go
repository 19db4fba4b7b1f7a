package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/config"
	"github.com/Shivanand-hulikatti/seat-reservations/internal/repository"
)

func baseConfig() config.Config {
	return config.Config{
		Port:        "8080",
		StoreDriver: config.DriverMemory,
		SQLitePath:  "reservations.db",
		LockTimeout: 2 * time.Second,
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := baseConfig()
	err := applyFlags(&cfg, []string{"--port", "9090", "--store", "sqlite", "--sqlite-path", "/tmp/x.db", "--log-level", "debug", "--lock-timeout", "500ms"})
	if err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if cfg.Port != "9090" || cfg.StoreDriver != config.DriverSQLite || cfg.SQLitePath != "/tmp/x.db" ||
		cfg.LogLevel != "debug" || cfg.LockTimeout != 500*time.Millisecond {
		t.Fatalf("flags not applied: %+v", cfg)
	}

	cfg = baseConfig()
	if err := applyFlags(&cfg, []string{"--store", "mongo"}); err == nil {
		t.Fatal("expected an error for an unknown store driver")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := baseConfig()
	cfg.LogFormat = "text"
	cfg.LogLevel = "warn"

	logger, err := newLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := baseConfig()
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	closeStore()
	if _, ok := store.(*repository.Memory); !ok {
		t.Fatalf("expected *repository.Memory, got %T", store)
	}

	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "main.db")
	store, closeStore, err = openStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*repository.SQLite); !ok {
		t.Fatalf("expected *repository.SQLite, got %T", store)
	}
	if _, err := store.ListEvents(ctx); err != nil {
		t.Fatalf("list events on migrated sqlite: %v", err)
	}
}
