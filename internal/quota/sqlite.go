package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

// SQLiteTracker guards its read-then-write with the mutex shared by every
// component touching the embedded database.
type SQLiteTracker struct {
	db    *gorm.DB
	mu    *sync.Mutex
	limit int
	loc   *time.Location
	now   func() time.Time
}

func NewSQLiteTracker(db *gorm.DB, mu *sync.Mutex, limit int, loc *time.Location) *SQLiteTracker {
	return &SQLiteTracker{db: db, mu: mu, limit: limit, loc: loc, now: time.Now}
}

func (t *SQLiteTracker) Consume(ctx context.Context, visitorID string) error {
	now := t.now()
	today := dayKey(now, t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	var usage model.VisitorUsage
	err := t.db.WithContext(ctx).
		Where("visitor_id = ?", visitorID).
		First(&usage).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		usage = model.VisitorUsage{VisitorID: visitorID, UsageDate: today, Count: 1}
		if err := t.db.WithContext(ctx).Create(&usage).Error; err != nil {
			return fmt.Errorf("create quota row failed: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read quota failed: %w", err)
	}

	if usage.UsageDate != today {
		usage.UsageDate = today
		usage.Count = 1
	} else if usage.Count >= t.limit {
		return &ExceededError{Limit: t.limit, ResetAt: nextReset(now, t.loc)}
	} else {
		usage.Count++
	}

	err = t.db.WithContext(ctx).
		Model(&model.VisitorUsage{}).
		Where("visitor_id = ?", visitorID).
		Updates(map[string]any{"usage_date": usage.UsageDate, "count": usage.Count}).Error
	if err != nil {
		return fmt.Errorf("update quota row failed: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) Remaining(ctx context.Context, visitorID string) (int, error) {
	now := t.now()
	today := dayKey(now, t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

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
