// Package quota enforces the per-visitor daily message limit. Both backends
// implement the same contract: consuming a turn either increments today's
// counter or refuses without mutating anything.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Tracker is the daily usage counter. Consume is called once per chat turn
// before any model work starts.
type Tracker interface {
	// Consume counts one turn for the visitor. When the daily limit is
	// already reached it returns *ExceededError and leaves the counter
	// untouched.
	Consume(ctx context.Context, visitorID string) error

	// Remaining reports how many turns the visitor has left today.
	Remaining(ctx context.Context, visitorID string) (int, error)
}

// ExceededError reports a refused turn together with the limit and the moment
// the counter resets.
type ExceededError struct {
	Limit   int
	ResetAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily limit of %d messages reached, resets at %s", e.Limit, e.ResetAt.Format(time.RFC3339))
}

// dayKey formats the current day in the configured zone. The zone is resolved
// once at startup; all rollover decisions use it.
func dayKey(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

// nextReset is midnight after now in the configured zone.
func nextReset(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
