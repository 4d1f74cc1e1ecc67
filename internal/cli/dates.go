package cli

import (
	"fmt"
	"time"
)

const dateOnly = "2006-01-02"

// parseStartTime parses a lower time bound. Accepts RFC3339 or a bare
// date, which means the start of that day in UTC.
func parseStartTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: want YYYY-MM-DD or RFC3339", value)
	}
	return t.UTC(), nil
}

// parseEndTime parses an upper time bound. A bare date snaps to the end
// of that day so "--end 2024-04-01" includes the whole day.
func parseEndTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: want YYYY-MM-DD or RFC3339", value)
	}
	return t.UTC().Add(24*time.Hour - time.Millisecond), nil
}
