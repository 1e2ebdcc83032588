package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
)

// sacctJob is one job row as emitted by the accounting command.
type sacctJob struct {
	JobID     string            `json:"job_id"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time"`
	Meta      map[string]string `json:"meta"`
	Resources map[string]int64  `json:"resources"`
}

// SacctBackend shells out to a batch-scheduler accounting command that
// prints finished jobs for a time window as a JSON array.
type SacctBackend struct {
	command  string
	idPrefix string
	site     string
	runner   func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewSacctBackend builds a backend around the given command line. The
// placeholders {since} and {until} in the command are replaced with the
// window bounds in RFC 3339 before execution.
func NewSacctBackend(command, idPrefix, site string) (*SacctBackend, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("sacct backend requires a command")
	}
	return &SacctBackend{
		command:  command,
		idPrefix: idPrefix,
		site:     site,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}, nil
}

func (b *SacctBackend) ListRecords(ctx context.Context, since, until time.Time) ([]v1.RecordAdd, error) {
	command := strings.NewReplacer(
		"{since}", since.UTC().Format(time.RFC3339),
		"{until}", until.UTC().Format(time.RFC3339),
	).Replace(b.command)

	out, err := b.runner(ctx, "/bin/sh", "-c", command)
	if err != nil {
		return nil, fmt.Errorf("accounting command failed: %w", err)
	}

	var jobs []sacctJob
	if err := json.Unmarshal(out, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse accounting command output: %w", err)
	}

	records := make([]v1.RecordAdd, 0, len(jobs))
	for _, job := range jobs {
		add, err := b.toRecord(job)
		if err != nil {
			return nil, err
		}
		records = append(records, add)
	}
	return records, nil
}

func (b *SacctBackend) toRecord(job sacctJob) (v1.RecordAdd, error) {
	id, err := v1.ParseName(b.idPrefix + job.JobID)
	if err != nil {
		return v1.RecordAdd{}, fmt.Errorf("job %q yields an invalid record id: %w", job.JobID, err)
	}

	meta := v1.Meta{}
	if b.site != "" {
		site, err := v1.ParseName(b.site)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("invalid site name %q: %w", b.site, err)
		}
		meta.Insert(v1.MustName("site"), []v1.Name{site})
	}
	for key, val := range job.Meta {
		name, err := v1.ParseName(key)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("job %q has an invalid meta key %q: %w", job.JobID, key, err)
		}
		value, err := v1.ParseName(val)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("job %q has an invalid meta value for %q: %w", job.JobID, key, err)
		}
		meta.Insert(name, []v1.Name{value})
	}

	components := make([]v1.Component, 0, len(job.Resources))
	for key, amount := range job.Resources {
		name, err := v1.ParseName(key)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("job %q has an invalid resource name %q: %w", job.JobID, key, err)
		}
		parsed, err := v1.ParseAmount(amount)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("job %q has an invalid amount for %q: %w", job.JobID, key, err)
		}
		components = append(components, v1.Component{Name: name, Amount: parsed})
	}

	add := v1.RecordAdd{
		RecordID:   id,
		Meta:       meta,
		Components: components,
		StartTime:  job.StartTime,
		StopTime:   job.EndTime,
	}
	add.Normalize()
	if err := add.Validate(); err != nil {
		return v1.RecordAdd{}, fmt.Errorf("job %q yields an invalid record: %w", job.JobID, err)
	}
	return add, nil
}
