// Package collector pulls finished job records from a compute backend
// and forwards them to the accounting store, keeping a per-collector
// watermark so that restarts resume where the previous run stopped.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/auditor-dev/auditor/internal/core/storage"
)

// Backend produces the records that finished in a given time window.
type Backend interface {
	// ListRecords returns all records whose jobs ended in [since, until).
	ListRecords(ctx context.Context, since, until time.Time) ([]v1.RecordAdd, error)
}

// Sink receives the records a collection pass produced.
type Sink interface {
	// Push stores a batch. Records already present downstream must be
	// tolerated so that a re-collected window does not fail the pass.
	Push(ctx context.Context, batch []v1.RecordAdd) error
}

// Driver runs the periodic collection loop.
type Driver struct {
	id       v1.Name
	backend  Backend
	sink     Sink
	cursor   storage.Checkpointer
	interval time.Duration
	earliest time.Time
	now      func() time.Time
}

// NewDriver builds a Driver. The id keys the watermark in the store, so
// independent collectors must use distinct ids. earliest bounds the first
// window when no watermark exists yet.
func NewDriver(id string, backend Backend, sink Sink, cursor storage.Checkpointer, interval time.Duration, earliest time.Time) (*Driver, error) {
	name, err := v1.ParseName(id)
	if err != nil {
		return nil, fmt.Errorf("invalid collector id: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("collection interval must be positive, got %s", interval)
	}
	return &Driver{
		id:       name,
		backend:  backend,
		sink:     sink,
		cursor:   cursor,
		interval: interval,
		earliest: earliest.UTC(),
		now:      time.Now,
	}, nil
}

// Run collects immediately and then on every interval tick until the
// context is cancelled. Backend failures skip the tick and leave the
// watermark untouched; sink and watermark failures abort the loop.
func (d *Driver) Run(ctx context.Context) error {
	slog.Info("[Collector] Starting collection loop",
		"collector_id", d.id.String(),
		"interval", d.interval.String())

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.collect(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			slog.Info("[Collector] Collection loop stopped", "collector_id", d.id.String())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// collect performs a single pass over the window between the stored
// watermark and now.
func (d *Driver) collect(ctx context.Context) error {
	since, err := d.windowStart(ctx)
	if err != nil {
		return err
	}
	until := d.now().UTC()
	if !until.After(since) {
		return nil
	}

	batch, err := d.backend.ListRecords(ctx, since, until)
	if err != nil {
		// The window is re-collected on the next tick.
		slog.Error("[Collector] Backend query failed, skipping tick",
			"collector_id", d.id.String(),
			"since", since,
			"until", until,
			"error", err.Error())
		return nil
	}

	if len(batch) > 0 {
		if err := d.sink.Push(ctx, batch); err != nil {
			return fmt.Errorf("failed to push %d records: %w", len(batch), err)
		}
	}

	if err := d.cursor.SetLastCheck(ctx, d.id, until); err != nil {
		return fmt.Errorf("failed to advance watermark for collector %s: %w", d.id, err)
	}

	slog.Info("[Collector] Collection pass completed",
		"collector_id", d.id.String(),
		"records", len(batch),
		"until", until)
	return nil
}

func (d *Driver) windowStart(ctx context.Context) (time.Time, error) {
	last, err := d.cursor.GetLastCheck(ctx, d.id)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark for collector %s: %w", d.id, err)
	}
	if last == nil || last.Before(d.earliest) {
		return d.earliest, nil
	}
	return last.UTC(), nil
}
