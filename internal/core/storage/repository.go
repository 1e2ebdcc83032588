package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
)

// ErrDuplicate is returned when a record with the same record_id already exists.
var ErrDuplicate = errors.New("record already exists")

// ErrNotFound is returned when no record with the given record_id exists.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyClosed is returned when an update would overwrite a closed
// record's stop_time with a different value. Reasserting the same stop_time
// is treated as an idempotent no-op, not an error.
var ErrAlreadyClosed = errors.New("record already closed")

// ErrInvalidUpdate is returned when an update is inconsistent with the
// stored record, e.g. a stop_time preceding the stored start_time. This is
// a caller error, not a backend failure.
var ErrInvalidUpdate = errors.New("update inconsistent with stored record")

// MetaFilter matches records whose meta list under Key contains Value.
type MetaFilter struct {
	Key   v1.Name
	Value v1.Name
}

// Filters are combined with AND. Nil bounds are unconstrained.
type Filters struct {
	StartTimeGTE *time.Time
	StartTimeLTE *time.Time
	StopTimeGTE  *time.Time
	StopTimeLTE  *time.Time
	RuntimeGTE   *int64
	RuntimeLTE   *int64
	Meta         []MetaFilter
	IDPrefix     string
}

// SortField enumerates the columns a listing may be ordered by.
type SortField string

const (
	SortRecordID  SortField = "record_id"
	SortStartTime SortField = "start_time"
	SortStopTime  SortField = "stop_time"
	SortRuntime   SortField = "runtime"
)

// Order is a sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Query is a filtered, ordered listing request. A zero SortBy means the
// default order: ascending stop_time with open records (NULL stop_time) last.
type Query struct {
	Filters Filters
	SortBy  SortField
	Order   Order
}

// RecordStore is the durable repository behind the accounting server and
// the collectors.
type RecordStore interface {
	// Insert persists a new record. Returns ErrDuplicate when the
	// record_id is already taken.
	Insert(ctx context.Context, add *v1.RecordAdd) error

	// InsertMany persists a batch in a single transaction. Records whose
	// record_id already exists are skipped, so replaying a batch after a
	// lost watermark write is a no-op.
	InsertMany(ctx context.Context, batch []v1.RecordAdd) error

	// Update atomically applies upd to an existing record and recomputes
	// its runtime. Returns ErrNotFound or ErrAlreadyClosed.
	Update(ctx context.Context, upd *v1.RecordUpdate) (*v1.Record, error)

	// GetAll returns the records matching q.
	GetAll(ctx context.Context, q Query) ([]*v1.Record, error)

	// GetOne returns the record with the given id, or ErrNotFound.
	GetOne(ctx context.Context, id v1.Name) (*v1.Record, error)

	Checkpointer

	// Health verifies that the backend is reachable.
	Health(ctx context.Context) error
}

// Checkpointer persists per-collector lastcheck watermarks.
type Checkpointer interface {
	// GetLastCheck returns the collector's watermark, or nil when the
	// collector has never checkpointed.
	GetLastCheck(ctx context.Context, collectorID v1.Name) (*time.Time, error)

	// SetLastCheck upserts the collector's watermark.
	SetLastCheck(ctx context.Context, collectorID v1.Name, ts time.Time) error
}
