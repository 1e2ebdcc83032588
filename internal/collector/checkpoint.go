package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
)

// FileCheckpointer persists watermarks as RFC 3339 timestamps in one file
// per collector id under a state directory. It serves collectors that
// deliver through the API and therefore cannot reach the lastcheck table
// directly.
type FileCheckpointer struct {
	dir string
}

func NewFileCheckpointer(dir string) (*FileCheckpointer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %q: %w", dir, err)
	}
	return &FileCheckpointer{dir: dir}, nil
}

func (c *FileCheckpointer) GetLastCheck(_ context.Context, collectorID v1.Name) (*time.Time, error) {
	data, err := os.ReadFile(c.path(collectorID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read watermark file: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("corrupt watermark file for collector %s: %w", collectorID, err)
	}
	ts = ts.UTC()
	return &ts, nil
}

func (c *FileCheckpointer) SetLastCheck(_ context.Context, collectorID v1.Name, ts time.Time) error {
	path := c.path(collectorID)
	tmp := path + ".tmp"
	data := []byte(ts.UTC().Format(time.RFC3339Nano) + "\n")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write watermark file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace watermark file: %w", err)
	}
	return nil
}

func (c *FileCheckpointer) path(collectorID v1.Name) string {
	return filepath.Join(c.dir, collectorID.String()+".lastcheck")
}
