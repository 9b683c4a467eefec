package utils

import (
	"fmt"
	"time"
)

// PlayDateLayout is the wire format BGG uses for play dates
const PlayDateLayout = "2006-01-02"

// ParsePlayDate parses a YYYY-MM-DD date string into a UTC midnight time
func ParsePlayDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(PlayDateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid play date %q: %w", value, err)
	}
	return t, nil
}

// FormatPlayDate renders a time at date granularity for the BGG API
func FormatPlayDate(t time.Time) string {
	return t.UTC().Format(PlayDateLayout)
}
