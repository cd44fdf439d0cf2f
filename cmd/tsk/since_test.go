package main

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 18, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"empty", "", time.Time{}},
		{"duration", "36h", now.Add(-36 * time.Hour)},
		{"negative duration", "-2h", now.Add(-2 * time.Hour)},
		{"date", "2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if err != nil {
				t.Fatalf("parseSince(%q) failed: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSince_NaturalLanguage(t *testing.T) {
	now := time.Date(2026, 3, 18, 15, 30, 0, 0, time.UTC)

	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) failed: %v", err)
	}
	if !got.Before(now) || got.Before(now.Add(-48*time.Hour)) {
		t.Errorf("parseSince(yesterday) = %v, want within the last two days", got)
	}
}

func TestParseSince_Garbage(t *testing.T) {
	if _, err := parseSince("qwertyuiop", time.Now()); err == nil {
		t.Error("parseSince(garbage) should fail")
	}
}
