// Package window tracks accepted posts per author over a rolling 24 hour
// window.
package window

import (
	"context"
	"time"
)

// Duration is the length of the rolling window. It is not configurable.
const Duration = 24 * time.Hour

type Store interface {
	// Prune deletes every event older than now minus Duration and reports
	// how many were removed.
	Prune(ctx context.Context, now time.Time) (int64, error)
	// Count returns the number of retained events for identity. It does not
	// prune; callers run Prune first.
	Count(ctx context.Context, identity string) (int, error)
	Record(ctx context.Context, identity string, now time.Time) error
	// RecordIfUnder prunes identity's window, then records an event only if
	// fewer than limit remain. The check and the insert are atomic. The
	// engine decides one submission at a time and uses Prune, Count and
	// Record instead; this is for intake that decides concurrently.
	RecordIfUnder(ctx context.Context, identity string, now time.Time, limit int) (bool, int, error)
}

func cutoff(now time.Time) time.Time {
	return now.Add(-Duration)
}

// unixSeconds matches the fractional epoch seconds stored by earlier
// deployments.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
