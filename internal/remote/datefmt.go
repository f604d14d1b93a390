package remote

import (
	"strconv"
	"time"
)

// wireTimeLayout is the on-the-wire timestamp format: millisecond precision,
// always UTC. Re-applying Format to a time parsed with this layout is a
// no-op, satisfying the round-trip law in spec.md §8.
const wireTimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the wire's normalized RFC3339 form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(wireTimeLayout)
}

// ParseTime parses a wire timestamp: the normalized form, then plain
// RFC3339, then bare Unix seconds, and finally the current time if none of
// those apply — never a hard failure, since a caller synthesizing
// attributes has no way to reject a single bad timestamp out of four.
func ParseTime(s string) time.Time {
	if t, err := time.Parse(wireTimeLayout, s); err == nil {
		return t
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}

	return time.Now().UTC()
}
