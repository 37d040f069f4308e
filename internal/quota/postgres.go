package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

// PostgresTracker counts usage with a single conditional upsert so concurrent
// turns for the same visitor never overshoot the limit.
type PostgresTracker struct {
	db    *gorm.DB
	limit int
	loc   *time.Location
	now   func() time.Time
}

func NewPostgresTracker(db *gorm.DB, limit int, loc *time.Location) *PostgresTracker {
	return &PostgresTracker{db: db, limit: limit, loc: loc, now: time.Now}
}

func (t *PostgresTracker) Migrate(ctx context.Context) error {
	err := t.db.WithContext(ctx).Exec(`CREATE TABLE IF NOT EXISTS visitor_usage (
		visitor_id TEXT PRIMARY KEY,
		usage_date TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0
	)`).Error
	if err != nil {
		return fmt.Errorf("migrate visitor_usage failed: %w", err)
	}
	return nil
}

func (t *PostgresTracker) Consume(ctx context.Context, visitorID string) error {
	now := t.now()
	today := dayKey(now, t.loc)

	// One statement: insert today's first turn, roll a stale row over to 1,
	// or increment below the limit. No row comes back when the visitor is
	// already at the limit, and in that case nothing was written.
	var rows []struct{ Count int }
	err := t.db.WithContext(ctx).Raw(`
		INSERT INTO visitor_usage AS vu (visitor_id, usage_date, count)
		VALUES (?, ?, 1)
		ON CONFLICT (visitor_id) DO UPDATE SET
			count = CASE WHEN vu.usage_date <> EXCLUDED.usage_date THEN 1 ELSE vu.count + 1 END,
			usage_date = EXCLUDED.usage_date
		WHERE vu.usage_date <> EXCLUDED.usage_date OR vu.count < ?
		RETURNING count`, visitorID, today, t.limit).Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("consume quota failed: %w", err)
	}
	if len(rows) == 0 {
		return &ExceededError{Limit: t.limit, ResetAt: nextReset(now, t.loc)}
	}
	return nil
}

func (t *PostgresTracker) Remaining(ctx context.Context, visitorID string) (int, error) {
	now := t.now()
	today := dayKey(now, t.loc)

	var usage model.VisitorUsage
	err := t.db.WithContext(ctx).
		Where("visitor_id = ?", visitorID).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota failed: %w", err)
	}
	if usage.UsageDate != today {
		return t.limit, nil
	}
	remaining := t.limit - usage.Count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
