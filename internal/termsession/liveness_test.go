package termsession

import (
	"testing"
	"time"
)

func TestFreshness(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		last time.Time
		want Liveness
	}{
		{"never", time.Time{}, LivenessNone},
		{"just now", now, LivenessFresh},
		{"1.9s", now.Add(-1900 * time.Millisecond), LivenessFresh},
		{"exactly threshold", now.Add(-FreshThreshold), LivenessStale},
		{"a minute", now.Add(-time.Minute), LivenessStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Freshness(now, tt.last); got != tt.want {
				t.Errorf("Freshness = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestActivityAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		last time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-300 * time.Millisecond), "just now"},
		{now.Add(-4 * time.Second), "4s ago"},
		{now.Add(-3 * time.Minute), "3m ago"},
		{now.Add(-2 * time.Hour), "2h ago"},
	}
	for _, tt := range tests {
		if got := ActivityAgo(now, tt.last); got != tt.want {
			t.Errorf("ActivityAgo(%v) = %q, want %q", now.Sub(tt.last), got, tt.want)
		}
	}
}
