package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/auditor-dev/auditor/internal/core/config"
	"github.com/auditor-dev/auditor/internal/core/storage/postgres"
	"github.com/auditor-dev/auditor/internal/ingestion"
	"github.com/auditor-dev/auditor/internal/migrations"
	"github.com/auditor-dev/auditor/internal/projection"
	"github.com/auditor-dev/auditor/internal/server"
	"github.com/auditor-dev/auditor/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "auditor.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Server.Validate(); err != nil {
		slog.Error("Invalid server config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Database.Validate(); err != nil {
		slog.Error("Invalid database config", "error", err)
		os.Exit(1)
	}

	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN(),
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.New()
	ingestionSvc := ingestion.NewService(dbAdapter, metrics, cfg.Server.MaxBodySizeMB)
	projectionSvc := projection.NewService(dbAdapter)

	srv := server.New(cfg.Server.ListenAddr(), dbAdapter, cfg.Server.Mode, metrics)
	ingestionSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}
