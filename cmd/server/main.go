package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrdrop/internal/server/api"
	"qrdrop/internal/server/config"
	"qrdrop/internal/server/service"
	"qrdrop/internal/server/storage"
)

func main() {
	// Load config
	cfg := config.Load()

	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"addr", cfg.Addr(),
		"upload_dir", cfg.UploadDir,
		"zip_dir", cfg.ZipDir,
		"base_url", cfg.BaseURL,
		"rate_limit_rps", cfg.RateLimitRPS,
	)

	// Initialize storage
	uploads := storage.NewFileSystemStore(cfg.UploadDir)
	archives := storage.NewFileSystemStore(cfg.ZipDir)
	for _, store := range []*storage.FileSystemStore{uploads, archives} {
		if err := store.EnsureDir(); err != nil {
			slog.Error("failed to initialize storage", "path", store.Root(), "error", err)
			os.Exit(1)
		}
		slog.Info("file storage initialized", "path", store.Root())
	}

	svc := service.NewUploadService(uploads, archives, cfg)

	// Setup HTTP router
	handler := api.NewHandler(svc, uploads, archives)
	e := api.SetupRouter(handler, cfg)

	// Request bodies are unbounded, so only header reads and idle
	// connections are timed out.
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	// Start server in a goroutine
	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exited cleanly")
}
