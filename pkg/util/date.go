package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a plain date, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// TimeRange resolves a from/to pair, defaulting to the last window ending now.
// A reversed pair is swapped.
func TimeRange(fromS, toS string, window time.Duration, now time.Time) (time.Time, time.Time) {
	to := ParseTimeDefault(toS, now)
	from := ParseTimeDefault(fromS, to.Add(-window))
	if from.After(to) {
		from, to = to, from
	}
	return from, to
}
