package utils

import (
	"errors"
	"testing"
	"time"
)

func TestDaysBetween(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if got := DaysBetween(start, start.Add(36*time.Hour)); got != 1.5 {
		t.Fatalf("expected 1.5 days, got %v", got)
	}
	if got := DaysBetween(start.Add(48*time.Hour), start); got != -2 {
		t.Fatalf("expected -2 days, got %v", got)
	}
}

func TestDayIndexTruncatesToMidnight(t *testing.T) {
	origin := time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC)
	got := DayIndex(origin, 3)
	want := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseRFC3339(t *testing.T) {
	if _, err := ParseRFC3339(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
	got, err := ParseRFC3339("2024-05-01T10:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 10 {
		t.Fatalf("unexpected hour %d", got.Hour())
	}
}

func TestUserMessage(t *testing.T) {
	base := errors.New("boom")
	err := NewAppError("forecast", "insufficient data", base)
	if UserMessage(err) != "insufficient data" {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to unwrap")
	}
	if UserMessage(base) != "boom" {
		t.Fatalf("expected fallback to error text")
	}
}
