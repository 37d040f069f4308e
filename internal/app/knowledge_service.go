package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
	"github.com/jeankeim/voice-brainstorm/internal/model"
	"github.com/jeankeim/voice-brainstorm/internal/pkg/textextract"
	"github.com/jeankeim/voice-brainstorm/internal/repository"
	"github.com/jeankeim/voice-brainstorm/internal/vectorstore"
)

// embedBatchSize bounds how many chunks go to the embedding API per call.
const embedBatchSize = 16

type KnowledgeService struct {
	kbRepo       *repository.KnowledgeBaseRepository
	docRepo      *repository.DocumentRepository
	store        vectorstore.Store
	aiClient     *ai.Client
	embedCfg     ai.EmbeddingConfig
	chunkSize    int
	chunkOverlap int
	logger       zerolog.Logger
}

func NewKnowledgeService(
	kbRepo *repository.KnowledgeBaseRepository,
	docRepo *repository.DocumentRepository,
	store vectorstore.Store,
	aiClient *ai.Client,
	embedCfg ai.EmbeddingConfig,
	chunkSize, chunkOverlap int,
	logger zerolog.Logger,
) *KnowledgeService {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &KnowledgeService{
		kbRepo:       kbRepo,
		docRepo:      docRepo,
		store:        store,
		aiClient:     aiClient,
		embedCfg:     embedCfg,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

type CreateKnowledgeBaseInput struct {
	UserID      string
	Name        string
	Description string
}

func (s *KnowledgeService) CreateKnowledgeBase(input CreateKnowledgeBaseInput) (*model.KnowledgeBase, error) {
	name := strings.TrimSpace(input.Name)
	if input.UserID == "" || name == "" {
		return nil, ErrInvalidInput
	}

	kb := &model.KnowledgeBase{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.kbRepo.Create(kb); err != nil {
		return nil, err
	}
	return kb, nil
}

type UpdateKnowledgeBaseInput struct {
	UserID      string
	KBID        string
	Name        string
	Description string
}

func (s *KnowledgeService) UpdateKnowledgeBase(input UpdateKnowledgeBaseInput) (*model.KnowledgeBase, error) {
	name := strings.TrimSpace(input.Name)
	if input.UserID == "" || input.KBID == "" || name == "" {
		return nil, ErrInvalidInput
	}

	kb, err := s.kbRepo.GetByIDAndUserID(input.KBID, input.UserID)
	if err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, ErrKnowledgeBaseNotFound
	}

	kb.Name = name
	kb.Description = strings.TrimSpace(input.Description)
	if err := s.kbRepo.UpdateByIDAndUserID(input.KBID, input.UserID, kb.Name, kb.Description); err != nil {
		return nil, err
	}
	return kb, nil
}

func (s *KnowledgeService) ListKnowledgeBases(userID string) ([]model.KnowledgeBase, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.kbRepo.ListByUserID(userID)
}

// DeleteKnowledgeBase removes the relational rows and then the vector chunks.
// A chunk-cleanup failure does not undo the row deletion; it is logged so the
// orphaned collection can be reclaimed later.
func (s *KnowledgeService) DeleteKnowledgeBase(ctx context.Context, userID, kbID string) error {
	if userID == "" || kbID == "" {
		return ErrInvalidInput
	}
	kb, err := s.kbRepo.GetByIDAndUserID(kbID, userID)
	if err != nil {
		return err
	}
	if kb == nil {
		return ErrKnowledgeBaseNotFound
	}

	if err := s.kbRepo.DeleteByIDAndUserID(kbID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteKnowledgeBase(ctx, kbID); err != nil {
		s.logger.Warn().Err(err).Str("kb_id", kbID).Msg("vector cleanup failed, chunks orphaned")
	}
	return nil
}

type UploadDocumentInput struct {
	UserID      string
	KBID        string
	Filename    string
	ContentType string
}

// UploadDocument ingests one file: extract text, chunk, embed, index. The
// document row is created only after the chunks are stored, so a failed
// ingest leaves no half-indexed document behind.
func (s *KnowledgeService) UploadDocument(ctx context.Context, input UploadDocumentInput, file io.Reader) (*model.Document, error) {
	filename := strings.TrimSpace(input.Filename)
	if input.UserID == "" || input.KBID == "" || filename == "" {
		return nil, ErrInvalidInput
	}
	if !textextract.Supported(filename) {
		return nil, ErrUnsupportedFile
	}

	kb, err := s.kbRepo.GetByIDAndUserID(input.KBID, input.UserID)
	if err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, ErrKnowledgeBaseNotFound
	}

	text, err := textextract.FromReader(filename, file)
	if err != nil {
		return nil, fmt.Errorf("extract document text failed: %w", err)
	}
	pieces := textextract.SplitChunks(text, s.chunkSize, s.chunkOverlap)
	if len(pieces) == 0 {
		return nil, ErrEmptyDocument
	}

	docID := uuid.NewString()
	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vectorstore.Chunk{
			Text: piece,
			Metadata: model.ChunkMetadata{
				Filename:    filepath.Base(filename),
				DocID:       docID,
				ChunkIndex:  i,
				TotalChunks: len(pieces),
			},
		}
	}

	embeddings, err := s.embedChunks(ctx, pieces)
	if err != nil {
		return nil, err
	}
	if err := s.store.Add(ctx, input.KBID, docID, chunks, embeddings); err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:          docID,
		KBID:        input.KBID,
		Filename:    filepath.Base(filename),
		ContentType: input.ContentType,
		ChunkCount:  len(pieces),
	}
	if err := s.docRepo.Create(doc); err != nil {
		// The chunks are already indexed; try not to leave them orphaned.
		if cleanupErr := s.store.DeleteDocument(ctx, input.KBID, docID); cleanupErr != nil {
			s.logger.Warn().Err(cleanupErr).Str("doc_id", docID).Msg("chunk rollback failed, chunks orphaned")
		}
		return nil, err
	}
	return doc, nil
}

func (s *KnowledgeService) embedChunks(ctx context.Context, pieces []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(pieces))
	for start := 0; start < len(pieces); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.aiClient.EmbedBatch(ctx, s.embedCfg, pieces[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed document chunks failed: %w", err)
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (s *KnowledgeService) ListDocuments(userID, kbID string) ([]model.Document, error) {
	if userID == "" || kbID == "" {
		return nil, ErrInvalidInput
	}
	kb, err := s.kbRepo.GetByIDAndUserID(kbID, userID)
	if err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, ErrKnowledgeBaseNotFound
	}
	return s.docRepo.ListByKBID(kbID)
}

func (s *KnowledgeService) DeleteDocument(ctx context.Context, userID, kbID, docID string) error {
	if userID == "" || kbID == "" || docID == "" {
		return ErrInvalidInput
	}
	kb, err := s.kbRepo.GetByIDAndUserID(kbID, userID)
	if err != nil {
		return err
	}
	if kb == nil {
		return ErrKnowledgeBaseNotFound
	}
	doc, err := s.docRepo.GetByIDAndKBID(docID, kbID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if err := s.docRepo.DeleteByIDAndKBID(docID, kbID); err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, kbID, docID); err != nil {
		s.logger.Warn().Err(err).Str("doc_id", docID).Msg("vector cleanup failed, chunks orphaned")
	}
	return nil
}
