package model

import (
	"fmt"
	"time"
)

// TimestampLayout is the wire format of every stored record timestamp:
// RFC 3339, UTC, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 string (with or without fractional
// seconds) and returns it in UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// Score is the sorted-index score for a timestamp (epoch milliseconds).
func Score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Now truncates to the wire precision so that a record read back from the
// store compares equal to the one that was written.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
