package termsession

import (
	"fmt"
	"time"
)

// FreshThreshold is how recent the last data frame must be for the output
// to count as fresh.
const FreshThreshold = 2 * time.Second

// Liveness is the derived freshness of output activity.
type Liveness string

const (
	LivenessNone  Liveness = "none" // no data seen yet
	LivenessFresh Liveness = "fresh"
	LivenessStale Liveness = "stale"
)

// Freshness derives the liveness indicator from the last data activity.
// It holds no state; callers recompute it on their own tick.
func Freshness(now, lastActivityAt time.Time) Liveness {
	if lastActivityAt.IsZero() {
		return LivenessNone
	}
	if now.Sub(lastActivityAt) < FreshThreshold {
		return LivenessFresh
	}
	return LivenessStale
}

// ActivityAgo renders the age of t for display, e.g. "4s ago".
func ActivityAgo(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	default:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	}
}
