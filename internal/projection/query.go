package projection

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	"github.com/auditor-dev/auditor/internal/core/storage"
)

const metaFilterPrefix = "meta."

// parseQuery translates the /records query string into a storage query.
// Filters combine with AND; unknown keys are rejected so typos never
// silently widen a listing.
func parseQuery(values url.Values) (storage.Query, error) {
	var q storage.Query

	for key, vals := range values {
		if strings.HasPrefix(key, metaFilterPrefix) {
			if err := appendMetaFilters(&q.Filters, key, vals); err != nil {
				return storage.Query{}, err
			}
			continue
		}

		// Non-meta keys take a single value.
		val := vals[len(vals)-1]

		switch key {
		case "start_time_gte":
			if err := bindTime(&q.Filters.StartTimeGTE, key, val); err != nil {
				return storage.Query{}, err
			}
		case "start_time_lte":
			if err := bindTime(&q.Filters.StartTimeLTE, key, val); err != nil {
				return storage.Query{}, err
			}
		case "stop_time_gte":
			if err := bindTime(&q.Filters.StopTimeGTE, key, val); err != nil {
				return storage.Query{}, err
			}
		case "stop_time_lte":
			if err := bindTime(&q.Filters.StopTimeLTE, key, val); err != nil {
				return storage.Query{}, err
			}
		case "runtime_gte":
			if err := bindInt(&q.Filters.RuntimeGTE, key, val); err != nil {
				return storage.Query{}, err
			}
		case "runtime_lte":
			if err := bindInt(&q.Filters.RuntimeLTE, key, val); err != nil {
				return storage.Query{}, err
			}
		case "record_id_prefix":
			q.Filters.IDPrefix = val
		case "sort_by":
			switch storage.SortField(val) {
			case storage.SortRecordID, storage.SortStartTime, storage.SortStopTime, storage.SortRuntime:
				q.SortBy = storage.SortField(val)
			default:
				return storage.Query{}, fmt.Errorf("unsupported sort_by %q", val)
			}
		case "order":
			switch storage.Order(val) {
			case storage.OrderAsc, storage.OrderDesc:
				q.Order = storage.Order(val)
			default:
				return storage.Query{}, fmt.Errorf("unsupported order %q (must be asc or desc)", val)
			}
		default:
			return storage.Query{}, fmt.Errorf("unknown filter key %q", key)
		}
	}

	return q, nil
}

func appendMetaFilters(f *storage.Filters, key string, vals []string) error {
	rawKey := strings.TrimPrefix(key, metaFilterPrefix)
	metaKey, err := v1.ParseName(rawKey)
	if err != nil {
		return fmt.Errorf("meta filter key: %w", err)
	}
	for _, raw := range vals {
		metaVal, err := v1.ParseName(raw)
		if err != nil {
			return fmt.Errorf("meta filter value for %q: %w", rawKey, err)
		}
		f.Meta = append(f.Meta, storage.MetaFilter{Key: metaKey, Value: metaVal})
	}
	return nil
}

func bindTime(dst **time.Time, key, val string) error {
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return fmt.Errorf("filter %q: %q is not an RFC 3339 timestamp", key, val)
	}
	t = v1.NormalizeTime(t)
	*dst = &t
	return nil
}

func bindInt(dst **int64, key, val string) error {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("filter %q: %q is not an integer", key, val)
	}
	*dst = &n
	return nil
}
