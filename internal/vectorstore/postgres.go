package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

// PostgresStore is the centralized backend: all knowledge bases share the
// document_chunks table, queried with pgvector cosine distance and ranked
// full-text search.
type PostgresStore struct {
	db *gorm.DB
	// textSearchConfig is the regconfig used by SearchKeywords, e.g. "simple".
	textSearchConfig string
}

var tsConfigPattern = regexp.MustCompile(`^[a-z_]+$`)

func NewPostgresStore(db *gorm.DB, textSearchConfig string) (*PostgresStore, error) {
	if !tsConfigPattern.MatchString(textSearchConfig) {
		return nil, fmt.Errorf("invalid text search config %q", textSearchConfig)
	}
	return &PostgresStore{db: db, textSearchConfig: textSearchConfig}, nil
}

// Migrate creates the vector table and its indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id BIGSERIAL PRIMARY KEY,
			kb_id TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, EmbeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
			ON document_chunks USING ivfflat (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_kb ON document_chunks(kb_id)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_doc ON document_chunks(kb_id, doc_id)`,
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate document_chunks failed: %w", err)
		}
	}
	return nil
}

type pgChunkRow struct {
	ID         uint64          `gorm:"primaryKey"`
	KBID       string          `gorm:"column:kb_id"`
	DocID      string          `gorm:"column:doc_id"`
	ChunkIndex int             `gorm:"column:chunk_index"`
	Content    string          `gorm:"column:content"`
	Embedding  pgvector.Vector `gorm:"column:embedding;type:vector(1536)"`
	Metadata   string          `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
}

func (pgChunkRow) TableName() string { return "document_chunks" }

func (s *PostgresStore) Add(ctx context.Context, kbID, docID string, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]pgChunkRow, 0, len(chunks))
	for i, chunk := range chunks {
		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata failed: %w", err)
		}
		rows = append(rows, pgChunkRow{
			KBID:       kbID,
			DocID:      docID,
			ChunkIndex: chunk.Metadata.ChunkIndex,
			// NUL bytes are rejected by postgres text columns.
			Content:   strings.ReplaceAll(chunk.Text, "\x00", ""),
			Embedding: pgvector.NewVector(embeddings[i]),
			Metadata:  string(metaJSON),
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert document chunks failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, kbID string, queryVector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(queryVector)

	var rows []struct {
		Content  string
		Metadata string
		Distance float64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT content, metadata, embedding <=> ? AS distance
		FROM document_chunks
		WHERE kb_id = ?
		ORDER BY embedding <=> ?
		LIMIT ?`, vec, kbID, vec, topK).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, Match{
			Text:     row.Content,
			Metadata: parseMetadata(row.Metadata),
			Distance: row.Distance,
		})
	}
	return matches, nil
}

func (s *PostgresStore) SearchKeywords(ctx context.Context, kbID, query string, topK int) ([]model.RetrievalResult, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	// textSearchConfig is validated against tsConfigPattern at construction;
	// it cannot be bound as a parameter inside to_tsvector.
	stmt := fmt.Sprintf(`
		SELECT content, metadata,
		       ts_rank(to_tsvector('%[1]s', content), plainto_tsquery('%[1]s', ?)) AS score
		FROM document_chunks
		WHERE kb_id = ?
		  AND to_tsvector('%[1]s', content) @@ plainto_tsquery('%[1]s', ?)
		ORDER BY score DESC
		LIMIT ?`, s.textSearchConfig)

	var rows []struct {
		Content  string
		Metadata string
		Score    float64
	}
	if err := s.db.WithContext(ctx).Raw(stmt, query, kbID, query, topK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]model.RetrievalResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, model.RetrievalResult{
			Text:     row.Content,
			Metadata: parseMetadata(row.Metadata),
			Score:    row.Score,
			Source:   model.SourceBM25,
		})
	}
	return results, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, kbID, docID string) error {
	err := s.db.WithContext(ctx).
		Exec(`DELETE FROM document_chunks WHERE kb_id = ? AND doc_id = ?`, kbID, docID).Error
	if err != nil {
		return fmt.Errorf("delete document chunks failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteKnowledgeBase(ctx context.Context, kbID string) error {
	err := s.db.WithContext(ctx).
		Exec(`DELETE FROM document_chunks WHERE kb_id = ?`, kbID).Error
	if err != nil {
		return fmt.Errorf("delete knowledge base chunks failed: %w", err)
	}
	return nil
}

func parseMetadata(raw string) model.ChunkMetadata {
	var meta model.ChunkMetadata
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	return meta
}
