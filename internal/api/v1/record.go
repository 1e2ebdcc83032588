// Package v1 holds the wire- and store-facing record model. All scalar
// fields are validated value types: deserialization routes through their
// parsers, so a decoded record is valid by construction.
package v1

import (
	"fmt"
	"time"
)

// Score relates components of the same kind via a named scalar factor
// (e.g. an HEPSPEC06 benchmark score on a CPU component).
type Score struct {
	Name   Name   `json:"name"`
	Factor Factor `json:"factor"`
}

// Component is a resource consumed by a record: an amount of a named
// resource plus zero or more performance scores. Scores on one component
// have unique names.
type Component struct {
	Name   Name    `json:"name"`
	Amount Amount  `json:"amount"`
	Scores []Score `json:"scores"`
}

func validateComponents(components []Component) error {
	seen := make(map[Name]struct{}, len(components))
	for _, comp := range components {
		if comp.Name == "" {
			return fmt.Errorf("component name is required")
		}
		if _, dup := seen[comp.Name]; dup {
			return fmt.Errorf("duplicate component %q", comp.Name)
		}
		seen[comp.Name] = struct{}{}

		scoreNames := make(map[Name]struct{}, len(comp.Scores))
		for _, score := range comp.Scores {
			if score.Name == "" {
				return fmt.Errorf("component %q: score name is required", comp.Name)
			}
			if _, dup := scoreNames[score.Name]; dup {
				return fmt.Errorf("component %q: duplicate score %q", comp.Name, score.Name)
			}
			scoreNames[score.Name] = struct{}{}
		}
	}
	return nil
}

// RecordAdd is the shape accepted for record creation.
type RecordAdd struct {
	RecordID   Name        `json:"record_id"`
	Meta       Meta        `json:"meta"`
	Components []Component `json:"components"`
	StartTime  time.Time   `json:"start_time"`
	StopTime   *time.Time  `json:"stop_time,omitempty"`
}

// Validate ensures the cross-field invariants that the per-field parsers
// cannot see: a record id, a start time, unique components, and
// stop_time >= start_time when stop_time is present.
func (r *RecordAdd) Validate() error {
	if r.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if r.StopTime != nil && r.StopTime.Before(r.StartTime) {
		return fmt.Errorf("stop_time must not precede start_time")
	}
	return validateComponents(r.Components)
}

// Normalize converts all timestamps to UTC at microsecond precision, the
// canonical store representation.
func (r *RecordAdd) Normalize() {
	r.StartTime = NormalizeTime(r.StartTime)
	if r.StopTime != nil {
		t := NormalizeTime(*r.StopTime)
		r.StopTime = &t
	}
}

// RecordUpdate closes (or refines) an existing record. Unlike RecordAdd,
// start_time is optional and stop_time is required.
type RecordUpdate struct {
	RecordID   Name        `json:"record_id"`
	Meta       Meta        `json:"meta"`
	Components []Component `json:"components"`
	StartTime  *time.Time  `json:"start_time,omitempty"`
	StopTime   time.Time   `json:"stop_time"`
}

// Validate ensures the cross-field invariants of an update.
func (r *RecordUpdate) Validate() error {
	if r.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if r.StopTime.IsZero() {
		return fmt.Errorf("stop_time is required")
	}
	if r.StartTime != nil && r.StopTime.Before(*r.StartTime) {
		return fmt.Errorf("stop_time must not precede start_time")
	}
	return validateComponents(r.Components)
}

// Normalize converts all timestamps to UTC at microsecond precision.
func (r *RecordUpdate) Normalize() {
	r.StopTime = NormalizeTime(r.StopTime)
	if r.StartTime != nil {
		t := NormalizeTime(*r.StartTime)
		r.StartTime = &t
	}
}

// Record is the persisted and returned shape: all RecordAdd fields plus the
// derived runtime in whole seconds, absent while the record is still open.
type Record struct {
	RecordID   Name        `json:"record_id"`
	Meta       Meta        `json:"meta"`
	Components []Component `json:"components"`
	StartTime  time.Time   `json:"start_time"`
	StopTime   *time.Time  `json:"stop_time,omitempty"`
	Runtime    *int64      `json:"runtime,omitempty"`
}

// NewRecord derives a Record from a validated RecordAdd, computing runtime
// when the record is already closed.
func NewRecord(add RecordAdd) Record {
	rec := Record{
		RecordID:   add.RecordID,
		Meta:       add.Meta,
		Components: add.Components,
		StartTime:  NormalizeTime(add.StartTime),
	}
	if add.StopTime != nil {
		stop := NormalizeTime(*add.StopTime)
		rec.StopTime = &stop
		runtime := RuntimeSeconds(rec.StartTime, stop)
		rec.Runtime = &runtime
	}
	return rec
}

// RuntimeSeconds is the integer second difference between stop and start,
// truncated toward zero.
func RuntimeSeconds(start, stop time.Time) int64 {
	return int64(stop.Sub(start) / time.Second)
}

// NormalizeTime converts t to UTC and truncates it to microsecond
// precision, matching the store's timestamp resolution.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
