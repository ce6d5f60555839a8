package store

import "time"

// isoFormat is the ISO-8601 UTC timestamp format used for all persisted
// created_at/updated_at/status_fetched_at columns (spec §3). Nanosecond
// precision keeps same-second writes orderable for the probe/user-intent
// staleness comparison in UpdateTaskStatus (spec §5).
const isoFormat = time.RFC3339Nano

func isoNow() string {
	return time.Now().UTC().Format(isoFormat)
}

func parseISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(isoFormat, s)
}
