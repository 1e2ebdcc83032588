package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/auditor-dev/auditor/internal/client"
	"github.com/auditor-dev/auditor/internal/collector/epilog"
	corecfg "github.com/auditor-dev/auditor/internal/core/config"
)

// One-shot collector invoked by the scheduler's job-termination hook.
// Any failure exits nonzero so the scheduler retries the push.
func main() {
	configPath := flag.String("config", "auditor.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Epilog.Validate(); err != nil {
		slog.Error("Invalid epilog config", "error", err)
		os.Exit(1)
	}

	job, err := epilog.JobFromEnv(os.Environ(), cfg.Epilog.JobIDVar, cfg.Epilog.StartVar, cfg.Epilog.StopVar)
	if err != nil {
		slog.Error("Failed to read job environment", "error", err)
		os.Exit(1)
	}

	add, err := epilog.BuildRecord(cfg.Epilog.RecordPrefix, cfg.Epilog.SiteID, cfg.Epilog.Components, job)
	if err != nil {
		slog.Error("Failed to build record", "job_id", job.ID, "error", err)
		os.Exit(1)
	}

	apiClient, err := client.Config{
		Address: cfg.Epilog.Addr,
		Port:    cfg.Epilog.Port,
	}.Build()
	if err != nil {
		slog.Error("Failed to build client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := apiClient.Add(ctx, add); err != nil {
		slog.Error("Failed to push record", "record_id", add.RecordID.String(), "error", err)
		os.Exit(1)
	}
	slog.Info("Record pushed", "record_id", add.RecordID.String())
}
