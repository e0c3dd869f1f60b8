package utils

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// DaysBetween returns the signed fractional number of days from start to end.
func DaysBetween(start, end time.Time) float64 {
	return float64(end.Sub(start)) / float64(day)
}

// DayIndex converts a day ordinal into an instant relative to origin (midnight UTC).
func DayIndex(origin time.Time, index int) time.Time {
	y, m, d := origin.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, index)
}
