package collector

import (
	"context"
	"fmt"
	"log/slog"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/auditor-dev/auditor/internal/client"
	"github.com/auditor-dev/auditor/internal/core/storage"
)

// StoreSink writes collected records straight into the accounting store.
// Used when the collector runs alongside the server and can reach the
// database directly.
type StoreSink struct {
	store storage.RecordStore
}

func NewStoreSink(store storage.RecordStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Push(ctx context.Context, batch []v1.RecordAdd) error {
	return s.store.InsertMany(ctx, batch)
}

// ClientSink submits collected records through the accounting API. A
// record the server already knows is skipped, so replaying a window
// after a partial failure is safe.
type ClientSink struct {
	client *client.Client
}

func NewClientSink(c *client.Client) *ClientSink {
	return &ClientSink{client: c}
}

func (s *ClientSink) Push(ctx context.Context, batch []v1.RecordAdd) error {
	for _, add := range batch {
		if _, err := s.client.Add(ctx, add); err != nil {
			if client.IsDuplicate(err) {
				slog.Debug("[Collector] Record already present, skipping",
					"record_id", add.RecordID.String())
				continue
			}
			return fmt.Errorf("failed to submit record %s: %w", add.RecordID, err)
		}
	}
	return nil
}
