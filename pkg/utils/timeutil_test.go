package utils

import (
	"testing"
	"time"
)

func TestLookbackWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 45, 999, time.UTC)
	from, to := LookbackWindow(now, 7)

	if !to.Equal(time.Date(2026, 3, 10, 12, 30, 45, 0, time.UTC)) {
		t.Errorf("to = %v, want truncated now", to)
	}
	if !from.Equal(time.Date(2026, 3, 3, 12, 30, 45, 0, time.UTC)) {
		t.Errorf("from = %v, want 7 days earlier", from)
	}
}

func TestFormatNewsAPI(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	ts := time.Date(2026, 1, 2, 9, 4, 5, 0, loc)
	if got := FormatNewsAPI(ts); got != "2026-01-02T12:04:05Z" {
		t.Errorf("FormatNewsAPI = %q, want 2026-01-02T12:04:05Z", got)
	}
}

func TestParseFlexible(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-02-18T10:00:00Z", time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)},
		{"2026-02-18T10:00:00.123Z", time.Date(2026, 2, 18, 10, 0, 0, 123000000, time.UTC)},
		{"2026-02-18T07:00:00-03:00", time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)},
		{"2026-02-18", time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		if got := ParseFlexible(tt.in); !got.Equal(tt.want) {
			t.Errorf("ParseFlexible(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := Since(now, 30); !got.Equal(time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %v", got)
	}
}
