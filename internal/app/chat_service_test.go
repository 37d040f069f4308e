package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
	"github.com/jeankeim/voice-brainstorm/internal/model"
	"github.com/jeankeim/voice-brainstorm/internal/quota"
	"github.com/jeankeim/voice-brainstorm/internal/repository"
)

type fakeQuota struct {
	consumeCalls int
	consumeErr   error
	remaining    int
}

func (f *fakeQuota) Consume(context.Context, string) error {
	f.consumeCalls++
	return f.consumeErr
}

func (f *fakeQuota) Remaining(context.Context, string) (int, error) {
	return f.remaining, nil
}

func newTestChatService(t *testing.T, quotaTracker QuotaTracker) (*ChatService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&model.Session{}, &model.Message{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	svc := NewChatService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		nil,
		nil,
		nil,
		quotaTracker,
		ai.NewClient(),
		ai.ChatConfig{Model: "text-model"},
		ai.ChatConfig{Model: "vision-model"},
		3,
		20,
		zerolog.Nop(),
	)
	return svc, db
}

func TestStreamTurnQuotaRefusalMutatesNothing(t *testing.T) {
	exceeded := &quota.ExceededError{Limit: 10, ResetAt: time.Now().Add(time.Hour)}
	fq := &fakeQuota{consumeErr: exceeded}
	svc, db := newTestChatService(t, fq)

	session, err := svc.CreateSession(CreateSessionInput{UserID: "visitor-1", Title: "t"})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	rec := httptest.NewRecorder()
	err = svc.StreamTurn(context.Background(), StreamTurnInput{
		UserID:    "visitor-1",
		SessionID: session.ID,
		Content:   "hello",
	}, rec)

	var got *quota.ExceededError
	if !errors.As(err, &got) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Fatal("no stream bytes should be written on a quota refusal")
	}

	var count int64
	if err := db.Model(&model.Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count messages failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted messages, got %d", count)
	}
}

func TestStreamTurnUnknownSessionSkipsQuota(t *testing.T) {
	fq := &fakeQuota{}
	svc, _ := newTestChatService(t, fq)

	rec := httptest.NewRecorder()
	err := svc.StreamTurn(context.Background(), StreamTurnInput{
		UserID:    "visitor-1",
		SessionID: "no-such-session",
		Content:   "hello",
	}, rec)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if fq.consumeCalls != 0 {
		t.Fatal("quota must not be consumed for an unknown session")
	}
}

func TestStreamTurnEmptyContent(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeQuota{})
	err := svc.StreamTurn(context.Background(), StreamTurnInput{
		UserID:    "visitor-1",
		SessionID: "s",
		Content:   "   ",
	}, httptest.NewRecorder())
	if !errors.Is(err, ErrMessageEmpty) {
		t.Fatalf("expected ErrMessageEmpty, got %v", err)
	}
}

func TestPickModelInspectsOnlyLastUserTurn(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeQuota{})

	// Earlier image turns must not trigger the vision model.
	messages := []ai.ChatMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "look", ImageURL: "http://img/old.png"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "plain text follow-up"},
	}
	if cfg := svc.pickModel(messages); cfg.Model != "text-model" {
		t.Fatalf("picked %q, want text-model", cfg.Model)
	}

	messages = append(messages[:3], ai.ChatMessage{Role: "user", Content: "and this", ImageURL: "http://img/new.png"})
	if cfg := svc.pickModel(messages); cfg.Model != "vision-model" {
		t.Fatalf("picked %q, want vision-model", cfg.Model)
	}
}

func TestCreateSessionDefaultsTitle(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeQuota{})
	session, err := svc.CreateSession(CreateSessionInput{UserID: "visitor-1"})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if session.Title != "New Chat" {
		t.Fatalf("title = %q", session.Title)
	}
	if session.ID == "" {
		t.Fatal("session id must be assigned")
	}
}

func TestGetHistoryRejectsForeignSession(t *testing.T) {
	svc, _ := newTestChatService(t, &fakeQuota{})
	session, err := svc.CreateSession(CreateSessionInput{UserID: "owner"})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	if _, err := svc.GetHistory("intruder", session.ID, 10); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign visitor, got %v", err)
	}
}
