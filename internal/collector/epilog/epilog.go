// Package epilog builds an accounting record for a single finished job
// from the key/value blob the cluster scheduler hands to its
// job-termination hook.
package epilog

import (
	"fmt"
	"strconv"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/google/uuid"
)

// OnlyIf gates a component or score on the literal value of another key
// in the scheduler blob. The component is skipped, not failed, when the
// gate does not match.
type OnlyIf struct {
	Key     string `koanf:"key"`
	Matches string `koanf:"matches"`
}

// ScoreSpec attaches a named factor to a component.
type ScoreSpec struct {
	Name   string  `koanf:"name"`
	Factor float64 `koanf:"factor"`
	OnlyIf *OnlyIf `koanf:"only_if"`
}

// ComponentSpec maps one scheduler key to a record component.
type ComponentSpec struct {
	Name   string      `koanf:"name"`
	Key    string      `koanf:"key"`
	Scores []ScoreSpec `koanf:"scores"`
	OnlyIf *OnlyIf     `koanf:"only_if"`
}

// Job is the data the scheduler provides for a finished job: its id, its
// lifetime, and an opaque key/value blob of scheduler attributes.
type Job struct {
	ID        string
	StartTime time.Time
	StopTime  time.Time
	Blob      map[string]string
}

// BuildRecord maps a finished job to a RecordAdd. Components whose
// scheduler key is absent or whose only_if gate is unmet are skipped;
// a job without an id gets a generated one under the same prefix.
func BuildRecord(prefix, site string, specs []ComponentSpec, job Job) (v1.RecordAdd, error) {
	jobID := job.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	id, err := v1.ParseName(prefix + jobID)
	if err != nil {
		return v1.RecordAdd{}, fmt.Errorf("job %q yields an invalid record id: %w", jobID, err)
	}

	meta := v1.Meta{}
	if site != "" {
		siteName, err := v1.ParseName(site)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("invalid site name %q: %w", site, err)
		}
		meta.Insert(v1.MustName("site"), []v1.Name{siteName})
	}

	var components []v1.Component
	for _, spec := range specs {
		comp, ok, err := buildComponent(spec, job.Blob)
		if err != nil {
			return v1.RecordAdd{}, err
		}
		if ok {
			components = append(components, comp)
		}
	}

	add := v1.RecordAdd{
		RecordID:   id,
		Meta:       meta,
		Components: components,
		StartTime:  job.StartTime,
	}
	if !job.StopTime.IsZero() {
		stop := job.StopTime
		add.StopTime = &stop
	}
	add.Normalize()
	if err := add.Validate(); err != nil {
		return v1.RecordAdd{}, fmt.Errorf("job %q yields an invalid record: %w", jobID, err)
	}
	return add, nil
}

// buildComponent resolves one spec against the blob. The second return
// reports whether the component applies to this job at all.
func buildComponent(spec ComponentSpec, blob map[string]string) (v1.Component, bool, error) {
	if !gateOpen(spec.OnlyIf, blob) {
		return v1.Component{}, false, nil
	}
	raw, ok := blob[spec.Key]
	if !ok {
		return v1.Component{}, false, nil
	}

	name, err := v1.ParseName(spec.Name)
	if err != nil {
		return v1.Component{}, false, fmt.Errorf("invalid component name %q: %w", spec.Name, err)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return v1.Component{}, false, fmt.Errorf("component %q: value %q for key %q is not an integer: %w", spec.Name, raw, spec.Key, err)
	}
	amount, err := v1.ParseAmount(value)
	if err != nil {
		return v1.Component{}, false, fmt.Errorf("component %q: %w", spec.Name, err)
	}

	var scores []v1.Score
	for _, scoreSpec := range spec.Scores {
		if !gateOpen(scoreSpec.OnlyIf, blob) {
			continue
		}
		scoreName, err := v1.ParseName(scoreSpec.Name)
		if err != nil {
			return v1.Component{}, false, fmt.Errorf("component %q: invalid score name %q: %w", spec.Name, scoreSpec.Name, err)
		}
		factor, err := v1.ParseFactor(scoreSpec.Factor)
		if err != nil {
			return v1.Component{}, false, fmt.Errorf("component %q: score %q: %w", spec.Name, scoreSpec.Name, err)
		}
		scores = append(scores, v1.Score{Name: scoreName, Factor: factor})
	}

	return v1.Component{Name: name, Amount: amount, Scores: scores}, true, nil
}

func gateOpen(gate *OnlyIf, blob map[string]string) bool {
	if gate == nil {
		return true
	}
	return blob[gate.Key] == gate.Matches
}
