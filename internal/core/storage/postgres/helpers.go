package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
)

// marshalRecordJSON marshals a record's meta and components for the JSONB
// columns. Empty components become an empty JSON array, never SQL NULL, so
// the store round-trips to an equal record.
func marshalRecordJSON(meta v1.Meta, components []v1.Component) (metaJSON, componentsJSON []byte, err error) {
	metaJSON, err = json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal meta: %w", err)
	}

	if components == nil {
		components = []v1.Component{}
	}
	componentsJSON, err = json.Marshal(components)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal components: %w", err)
	}

	return metaJSON, componentsJSON, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecordRow scans a database row into a Record. A malformed row (for
// example meta that no longer parses as valid names) surfaces as an error,
// never as a silently dropped record.
func scanRecordRow(row scanner) (*v1.Record, error) {
	var rec v1.Record
	var metaJSON, componentsJSON []byte
	var stopTime sql.NullTime
	var runtime sql.NullInt64

	err := row.Scan(
		&rec.RecordID,
		&metaJSON,
		&componentsJSON,
		&rec.StartTime,
		&stopTime,
		&runtime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record row: %w", err)
	}

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal meta for record %q: %w", rec.RecordID, err)
		}
	}
	if len(componentsJSON) > 0 {
		if err := json.Unmarshal(componentsJSON, &rec.Components); err != nil {
			return nil, fmt.Errorf("failed to unmarshal components for record %q: %w", rec.RecordID, err)
		}
	}

	rec.StartTime = v1.NormalizeTime(rec.StartTime)
	if stopTime.Valid {
		t := v1.NormalizeTime(stopTime.Time)
		rec.StopTime = &t
	}
	if runtime.Valid {
		r := runtime.Int64
		rec.Runtime = &r
	}

	return &rec, nil
}

// escapeLikePattern escapes LIKE metacharacters so a record_id prefix
// filter matches literally.
func escapeLikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
