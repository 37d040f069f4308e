package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
	"github.com/jeankeim/voice-brainstorm/internal/model"
	"github.com/jeankeim/voice-brainstorm/internal/relay"
	"github.com/jeankeim/voice-brainstorm/internal/repository"
	"github.com/jeankeim/voice-brainstorm/internal/retrieval"
)

const systemPrompt = "You are a thoughtful brainstorming partner. Give concrete, practical ideas and keep answers concise."

// AsyncMessagePublisher enqueues user messages for background persistence.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

// HistoryCache is the optional redis layer in front of session history.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// QuotaTracker mirrors quota.Tracker so tests can drop in a fake.
type QuotaTracker interface {
	Consume(ctx context.Context, visitorID string) error
	Remaining(ctx context.Context, visitorID string) (int, error)
}

type ChatService struct {
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	retriever    *retrieval.Retriever
	quota        QuotaTracker
	relay        *relay.Relay
	textLLM      ai.ChatConfig
	visionLLM    ai.ChatConfig
	historyTopK  int
	maxContext   int
	logger       zerolog.Logger
}

func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	retriever *retrieval.Retriever,
	quotaTracker QuotaTracker,
	aiClient *ai.Client,
	textLLM, visionLLM ai.ChatConfig,
	historyTopK, maxContext int,
	logger zerolog.Logger,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	s := &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
		historyCache: historyCache,
		retriever:    retriever,
		quota:        quotaTracker,
		textLLM:      textLLM,
		visionLLM:    visionLLM,
		historyTopK:  historyTopK,
		maxContext:   maxContext,
		logger:       logger,
	}
	s.relay = relay.New(aiClient, &assistantSink{service: s}, logger)
	return s
}

// assistantSink is the relay's persistence hook: assistant replies are written
// synchronously, before the terminal frame goes out.
type assistantSink struct {
	service *ChatService
}

func (a *assistantSink) SaveAssistantMessage(ctx context.Context, sessionID, content string) error {
	s := a.service
	msg := &model.Message{
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	_ = s.sessionRepo.Touch(sessionID)
	return nil
}

type CreateSessionInput struct {
	UserID string
	Title  string
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == "" {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	session := &model.Session{
		ID:     uuid.NewString(),
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID string) ([]model.Session, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ChatService) RenameSession(userID, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if userID == "" || sessionID == "" || title == "" {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	return s.sessionRepo.UpdateTitle(sessionID, userID, title)
}

func (s *ChatService) DeleteSession(userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), sessionID)
	}
	return nil
}

func (s *ChatService) GetHistory(userID, sessionID string, limit int) ([]model.Message, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	ctx := context.Background()
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

func (s *ChatService) QuotaRemaining(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidInput
	}
	return s.quota.Remaining(ctx, userID)
}

type StreamTurnInput struct {
	UserID    string
	SessionID string
	Content   string
	ImageURL  string
	KBID      string
}

// StreamTurn runs one chat turn end to end: quota, retrieval, prompt assembly
// and the SSE relay to w. Quota refusal and validation errors surface before
// any SSE byte is written; once streaming starts, failures go out as error
// frames inside the stream.
func (s *ChatService) StreamTurn(ctx context.Context, input StreamTurnInput, w http.ResponseWriter) error {
	content := strings.TrimSpace(input.Content)
	if input.UserID == "" || input.SessionID == "" {
		return ErrInvalidInput
	}
	if content == "" && input.ImageURL == "" {
		return ErrMessageEmpty
	}

	session, err := s.sessionRepo.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}

	// Quota is consumed before any model work; a refusal mutates nothing.
	if err := s.quota.Consume(ctx, input.UserID); err != nil {
		return err
	}

	recent, err := s.messageRepo.ListRecentBySessionID(input.SessionID, s.maxContext)
	if err != nil {
		return err
	}

	s.persistUserMessage(ctx, input, content)

	prompt := s.buildPrompt(ctx, input, content)

	messages := make([]ai.ChatMessage, 0, len(recent)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: systemPrompt})
	for _, item := range recent {
		messages = append(messages, ai.ChatMessage{
			Role:     item.Role,
			Content:  item.Content,
			ImageURL: item.ImageURL,
		})
	}
	messages = append(messages, ai.ChatMessage{
		Role:     model.RoleUser,
		Content:  prompt,
		ImageURL: input.ImageURL,
	})

	s.relay.Stream(ctx, s.pickModel(messages), messages, input.SessionID, w)
	return nil
}

// persistUserMessage prefers the async queue and falls back to a direct write
// when the broker is absent or refuses.
func (s *ChatService) persistUserMessage(ctx context.Context, input StreamTurnInput, content string) {
	msg := model.Message{
		SessionID: input.SessionID,
		Role:      model.RoleUser,
		Content:   content,
		ImageURL:  input.ImageURL,
		CreatedAt: time.Now(),
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.SessionID)
		_ = s.historyCache.DeleteHistory(ctx, input.SessionID)
	}
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, msg)
		if err == nil {
			return
		}
		s.logger.Warn().Err(err).Str("session_id", input.SessionID).Msg("enqueue user message failed, writing directly")
	}
	if err := s.messageRepo.Create(&msg); err != nil {
		s.logger.Error().Err(err).Str("session_id", input.SessionID).Msg("persist user message failed")
	}
}

// buildPrompt augments the user's text with knowledge-base and history context.
// Retrieval failures degrade to the raw question; they never fail the turn.
func (s *ChatService) buildPrompt(ctx context.Context, input StreamTurnInput, content string) string {
	if content == "" {
		return content
	}

	var kbResults []model.RetrievalResult
	if input.KBID != "" && s.retriever != nil {
		results, err := s.retriever.Retrieve(ctx, input.KBID, content)
		if err != nil {
			s.logger.Warn().Err(err).Str("kb_id", input.KBID).Msg("knowledge retrieval failed, continuing without context")
		} else {
			kbResults = results
		}
	}

	var historyResults []model.RetrievalResult
	if s.historyTopK > 0 {
		past, err := s.messageRepo.ListByUserID(input.UserID, 0)
		if err != nil {
			s.logger.Warn().Err(err).Msg("history lookup failed, continuing without context")
		} else {
			historyResults = retrieval.SearchHistory(past, content, s.historyTopK)
		}
	}

	return retrieval.FormatPrompt(retrieval.BuildContext(kbResults, historyResults), content)
}

// pickModel routes to the vision model when the last user turn carries an
// image. Earlier turns do not influence the choice.
func (s *ChatService) pickModel(messages []ai.ChatMessage) ai.ChatConfig {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != model.RoleUser {
			continue
		}
		if messages[i].ImageURL != "" {
			return s.visionLLM
		}
		break
	}
	return s.textLLM
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
