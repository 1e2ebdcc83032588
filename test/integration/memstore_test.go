package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/auditor-dev/auditor/internal/core/storage"
)

// memStore is an in-memory storage.RecordStore with the same observable
// semantics as the postgres adapter, so the HTTP stack can be exercised
// end to end without a database.
type memStore struct {
	mu      sync.Mutex
	records map[v1.Name]*v1.Record
	marks   map[v1.Name]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[v1.Name]*v1.Record),
		marks:   make(map[v1.Name]time.Time),
	}
}

func (s *memStore) Insert(_ context.Context, add *v1.RecordAdd) error {
	if err := add.Validate(); err != nil {
		return err
	}
	add.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[add.RecordID]; exists {
		return storage.ErrDuplicate
	}
	rec := v1.NewRecord(*add)
	s.records[add.RecordID] = &rec
	return nil
}

func (s *memStore) InsertMany(ctx context.Context, batch []v1.RecordAdd) error {
	for i := range batch {
		if err := s.Insert(ctx, &batch[i]); err != nil && err != storage.ErrDuplicate {
			return err
		}
	}
	return nil
}

func (s *memStore) Update(_ context.Context, upd *v1.RecordUpdate) (*v1.Record, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	upd.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[upd.RecordID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if rec.StopTime != nil && !rec.StopTime.Equal(upd.StopTime) {
		return nil, storage.ErrAlreadyClosed
	}

	start := rec.StartTime
	if upd.StartTime != nil {
		start = *upd.StartTime
	}
	if upd.StopTime.Before(start) {
		return nil, fmt.Errorf("%w: stop_time precedes stored start_time", storage.ErrInvalidUpdate)
	}

	rec.StartTime = start
	stop := upd.StopTime
	rec.StopTime = &stop
	if upd.Meta.Len() > 0 {
		rec.Meta = upd.Meta
	}
	if len(upd.Components) > 0 {
		rec.Components = upd.Components
	}
	runtime := v1.RuntimeSeconds(rec.StartTime, stop)
	rec.Runtime = &runtime

	out := *rec
	return &out, nil
}

func (s *memStore) GetAll(_ context.Context, q storage.Query) ([]*v1.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*v1.Record
	for _, rec := range s.records {
		if matches(rec, q.Filters) {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sortRecords(out, q.SortBy, q.Order)
	return out, nil
}

func (s *memStore) GetOne(_ context.Context, id v1.Name) (*v1.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *memStore) GetLastCheck(_ context.Context, collectorID v1.Name) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.marks[collectorID]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

func (s *memStore) SetLastCheck(_ context.Context, collectorID v1.Name, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[collectorID] = ts.UTC()
	return nil
}

func (s *memStore) Health(context.Context) error {
	return nil
}

func matches(rec *v1.Record, f storage.Filters) bool {
	if f.StartTimeGTE != nil && rec.StartTime.Before(*f.StartTimeGTE) {
		return false
	}
	if f.StartTimeLTE != nil && rec.StartTime.After(*f.StartTimeLTE) {
		return false
	}
	if f.StopTimeGTE != nil && (rec.StopTime == nil || rec.StopTime.Before(*f.StopTimeGTE)) {
		return false
	}
	if f.StopTimeLTE != nil && (rec.StopTime == nil || rec.StopTime.After(*f.StopTimeLTE)) {
		return false
	}
	if f.RuntimeGTE != nil && (rec.Runtime == nil || *rec.Runtime < *f.RuntimeGTE) {
		return false
	}
	if f.RuntimeLTE != nil && (rec.Runtime == nil || *rec.Runtime > *f.RuntimeLTE) {
		return false
	}
	if f.IDPrefix != "" && !strings.HasPrefix(rec.RecordID.String(), f.IDPrefix) {
		return false
	}
	for _, mf := range f.Meta {
		if !rec.Meta.Contains(mf.Key, mf.Value) {
			return false
		}
	}
	return true
}

// sortRecords mirrors the store's ordering: open records (no stop_time,
// no runtime) sort last regardless of direction.
func sortRecords(records []*v1.Record, field storage.SortField, order storage.Order) {
	if field == "" {
		field = storage.SortStopTime
	}
	desc := order == storage.OrderDesc

	sort.SliceStable(records, func(i, j int) bool {
		less, equal, iNull, jNull := compare(records[i], records[j], field)
		if iNull != jNull {
			return jNull
		}
		if equal {
			return false
		}
		if desc {
			return !less
		}
		return less
	})
}

func compare(a, b *v1.Record, field storage.SortField) (less, equal, aNull, bNull bool) {
	switch field {
	case storage.SortRecordID:
		return a.RecordID < b.RecordID, a.RecordID == b.RecordID, false, false
	case storage.SortStartTime:
		return a.StartTime.Before(b.StartTime), a.StartTime.Equal(b.StartTime), false, false
	case storage.SortStopTime:
		aNull, bNull = a.StopTime == nil, b.StopTime == nil
		if aNull || bNull {
			return false, aNull && bNull, aNull, bNull
		}
		return a.StopTime.Before(*b.StopTime), a.StopTime.Equal(*b.StopTime), false, false
	default: // SortRuntime
		aNull, bNull = a.Runtime == nil, b.Runtime == nil
		if aNull || bNull {
			return false, aNull && bNull, aNull, bNull
		}
		return *a.Runtime < *b.Runtime, *a.Runtime == *b.Runtime, false, false
	}
}
