// Package main is the entry point for the blobd blob storage server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bleepstore/blobd/internal/blob"
	"github.com/bleepstore/blobd/internal/config"
	"github.com/bleepstore/blobd/internal/logging"
	"github.com/bleepstore/blobd/internal/metadata"
	"github.com/bleepstore/blobd/internal/metrics"
	"github.com/bleepstore/blobd/internal/server"
	"github.com/bleepstore/blobd/internal/storage"
)

func main() {
	configPath := flag.String("config", "blobd.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 8000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	backend := flag.String("storage-backend", "", "override the active storage backend")
	flag.Parse()

	// The default config path may be absent; an explicit one must exist.
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	cfg, err := config.Load(*configPath, !explicit)
	if err != nil {
		fatal("failed to load config", err)
	}

	// Command-line flags override config file and environment values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	ctx := context.Background()

	// Every startup is recovery: SQLite WAL replays on open and the local
	// backend sweeps orphaned temp files in storage.Open.
	for _, p := range dataFiles(cfg) {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			fatal("failed to create data directory", err)
		}
	}

	meta, err := metadata.Open(ctx, &cfg.Metadata)
	if err != nil {
		fatal("failed to initialize metadata store", err)
	}
	defer meta.Close()
	slog.Info("Metadata store initialized", "engine", cfg.Metadata.Engine)

	backends, active, err := storage.OpenAll(ctx, cfg)
	if err != nil {
		fatal("failed to initialize storage backend", err)
	}
	defer func() {
		if err := storage.CloseAll(backends); err != nil {
			slog.Error("Closing storage backends", "error", err)
		}
	}()
	slog.Info("Storage backend initialized", "backend", active, "read_backends", cfg.Storage.ReadBackends)

	svc, err := blob.NewService(meta, backends, active)
	if err != nil {
		fatal("failed to create blob service", err)
	}

	srv, err := server.New(cfg, svc)
	if err != nil {
		fatal("failed to create server", err)
	}
	if !cfg.Auth.Enabled {
		slog.Warn("Bearer token authentication is disabled")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("blobd listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		// In-flight creates run to completion within the timeout.
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			// Deferred closes do not run after os.Exit.
			meta.Close()
			storage.CloseAll(backends)
			fatal("server error", err)
		}
	}
}

// dataFiles lists the on-disk database files the configuration will open.
func dataFiles(cfg *config.Config) []string {
	var files []string
	switch cfg.Metadata.Engine {
	case metadata.EngineSQLite, "":
		files = append(files, cfg.Metadata.SQLite.Path)
	case metadata.EngineBolt:
		files = append(files, cfg.Metadata.Bolt.Path)
	}
	tags := append([]string{cfg.Storage.Backend}, cfg.Storage.ReadBackends...)
	for _, t := range tags {
		if storage.Tag(t) == storage.TagDB {
			if cfg.Storage.DB.Path != "" {
				files = append(files, cfg.Storage.DB.Path)
			}
			break
		}
	}
	return files
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
