package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/auditor-dev/auditor/internal/client"
	corecfg "github.com/auditor-dev/auditor/internal/core/config"
	"github.com/auditor-dev/auditor/internal/plugin/priority"
	"golang.org/x/sync/errgroup"
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
	if err := cfg.Plugin.Validate(); err != nil {
		slog.Error("Invalid plugin config", "error", err)
		os.Exit(1)
	}

	apiClient, err := client.Config{
		Address: cfg.Plugin.Addr,
		Port:    cfg.Plugin.Port,
	}.Build()
	if err != nil {
		slog.Error("Failed to build client", "error", err)
		os.Exit(1)
	}

	loop, err := priority.NewLoop(priority.Options{
		Site:         cfg.Plugin.SiteID,
		GroupKey:     cfg.Plugin.GroupKey,
		GroupMapping: cfg.Plugin.GroupMapping,
		Weights:      cfg.Plugin.Components,
		ScoreName:    cfg.Plugin.ScoreName,
		MinPriority:  cfg.Plugin.MinPriority,
		MaxPriority:  cfg.Plugin.MaxPriority,
		LookBack:     cfg.Plugin.LookBack,
		Command:      cfg.Plugin.Command,
		Interval:     cfg.Plugin.Interval,
	}, apiClient, nil)
	if err != nil {
		slog.Error("Failed to initialize plugin", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop.Run(ctx)
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
		slog.Error("Plugin stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
