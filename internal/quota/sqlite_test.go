package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

func newTestTracker(t *testing.T, limit int) *SQLiteTracker {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&model.VisitorUsage{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return NewSQLiteTracker(db, &sync.Mutex{}, limit, time.UTC)
}

func TestConsumeEnforcesDailyLimit(t *testing.T) {
	tracker := newTestTracker(t, 3)
	tracker.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tracker.Consume(ctx, "visitor-1"); err != nil {
			t.Fatalf("consume %d failed: %v", i+1, err)
		}
	}

	err := tracker.Consume(ctx, "visitor-1")
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	if exceeded.Limit != 3 {
		t.Fatalf("exceeded limit = %d, want 3", exceeded.Limit)
	}
	wantReset := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if !exceeded.ResetAt.Equal(wantReset) {
		t.Fatalf("reset at = %v, want %v", exceeded.ResetAt, wantReset)
	}

	// The refused turn must not have touched the counter.
	remaining, err := tracker.Remaining(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
}

func TestConsumeResetsOnDayRollover(t *testing.T) {
	tracker := newTestTracker(t, 2)
	day1 := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return day1 }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := tracker.Consume(ctx, "visitor-1"); err != nil {
			t.Fatalf("consume failed: %v", err)
		}
	}
	if err := tracker.Consume(ctx, "visitor-1"); err == nil {
		t.Fatal("expected limit refusal before rollover")
	}

	day2 := day1.Add(2 * time.Hour)
	tracker.now = func() time.Time { return day2 }

	if err := tracker.Consume(ctx, "visitor-1"); err != nil {
		t.Fatalf("consume after rollover failed: %v", err)
	}
	remaining, err := tracker.Remaining(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("remaining after rollover = %d, want 1", remaining)
	}
}

func TestRemainingForUnknownVisitor(t *testing.T) {
	tracker := newTestTracker(t, 5)
	remaining, err := tracker.Remaining(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("remaining = %d, want full limit", remaining)
	}
}

func TestVisitorsAreIsolated(t *testing.T) {
	tracker := newTestTracker(t, 1)
	tracker.now = func() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := tracker.Consume(ctx, "visitor-a"); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if err := tracker.Consume(ctx, "visitor-a"); err == nil {
		t.Fatal("expected refusal for visitor-a")
	}
	if err := tracker.Consume(ctx, "visitor-b"); err != nil {
		t.Fatalf("visitor-b should be unaffected: %v", err)
	}
}
