package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auditor-dev/auditor/internal/client"
	"github.com/auditor-dev/auditor/internal/collector"
	corecfg "github.com/auditor-dev/auditor/internal/core/config"
	"github.com/auditor-dev/auditor/internal/core/storage"
	"github.com/auditor-dev/auditor/internal/core/storage/postgres"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "auditor.yaml", "Path to configuration file")
	stateDir := flag.String("state-dir", "/var/lib/auditor-collector", "Watermark directory for the client sink")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Collector.Validate(); err != nil {
		slog.Error("Invalid collector config", "error", err)
		os.Exit(1)
	}

	backend, err := newBackend(cfg.Collector)
	if err != nil {
		slog.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}

	sink, cursor, cleanup, err := newSink(cfg, *stateDir)
	if err != nil {
		slog.Error("Failed to initialize sink", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	earliest, err := cfg.Collector.Earliest()
	if err != nil {
		slog.Error("Invalid earliest datetime", "error", err)
		os.Exit(1)
	}

	driver, err := collector.NewDriver(
		cfg.Collector.ID,
		backend,
		sink,
		cursor,
		cfg.Collector.CollectInterval,
		earliest,
	)
	if err != nil {
		slog.Error("Failed to initialize collector", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return driver.Run(ctx)
	})
	group.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("Signal received, shutting down...")
			cancel()
			return nil
		case <-ctx.Done():
			return nil
		}
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Collector stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func newBackend(cfg corecfg.CollectorConfig) (collector.Backend, error) {
	switch cfg.Type {
	case "sacct":
		return collector.NewSacctBackend(cfg.Command, cfg.RecordPrefix, cfg.SiteID)
	case "kubeapi":
		return collector.NewKubeBackend(cfg.Endpoint, cfg.RecordPrefix, cfg.SiteID, 30*time.Second)
	default:
		return nil, fmt.Errorf("unsupported collector type %q", cfg.Type)
	}
}

// newSink wires the configured delivery path: the store sink writes to
// the database and uses the lastcheck table, the client sink posts to
// the API and keeps its watermark in local files.
func newSink(cfg *corecfg.Config, stateDir string) (collector.Sink, storage.Checkpointer, func(), error) {
	switch cfg.Collector.Sink {
	case "store":
		if err := cfg.Database.Validate(); err != nil {
			return nil, nil, nil, err
		}
		adapter, err := postgres.NewAdapter(
			cfg.Database.DSN(),
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
		)
		if err != nil {
			return nil, nil, nil, err
		}
		return collector.NewStoreSink(adapter), adapter, func() { adapter.Close() }, nil
	default: // "client", enforced by Validate
		apiClient, err := client.Config{
			Address: cfg.Collector.Addr,
			Port:    cfg.Collector.Port,
		}.Build()
		if err != nil {
			return nil, nil, nil, err
		}
		cursor, err := collector.NewFileCheckpointer(stateDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return collector.NewClientSink(apiClient), cursor, func() {}, nil
	}
}
