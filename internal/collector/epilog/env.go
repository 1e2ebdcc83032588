package epilog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JobFromEnv assembles a Job from a process environment in the usual
// "KEY=value" form. jobIDVar names the variable carrying the job id;
// startVar and stopVar name the variables carrying the job lifetime,
// either RFC 3339 or Unix seconds. Every variable lands in the blob so
// component specs can reference any scheduler attribute.
func JobFromEnv(environ []string, jobIDVar, startVar, stopVar string) (Job, error) {
	blob := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		blob[key] = value
	}

	job := Job{ID: blob[jobIDVar], Blob: blob}

	start, err := parseTimestamp(blob[startVar])
	if err != nil {
		return Job{}, fmt.Errorf("variable %s: %w", startVar, err)
	}
	job.StartTime = start

	if raw, ok := blob[stopVar]; ok && raw != "" {
		stop, err := parseTimestamp(raw)
		if err != nil {
			return Job{}, fmt.Errorf("variable %s: %w", stopVar, err)
		}
		job.StopTime = stop
	}
	return job, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is missing")
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither Unix seconds nor RFC 3339", raw)
	}
	return ts, nil
}
