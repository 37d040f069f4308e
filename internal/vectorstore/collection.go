package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

// CollectionStore is the embedded backend: one SQLite table per knowledge
// base, embeddings stored as JSON, similarity computed in process. All access
// is serialized by a mutex shared with the quota tracker because the
// underlying connection pool is capped at one.
type CollectionStore struct {
	db *gorm.DB
	mu *sync.Mutex
}

func NewCollectionStore(db *gorm.DB, mu *sync.Mutex) *CollectionStore {
	return &CollectionStore{db: db, mu: mu}
}

// collectionTable maps a knowledge-base id to its backing table name. Any
// byte outside [a-zA-Z0-9_] is replaced so the id can be spliced into DDL.
func collectionTable(kbID string) string {
	var b strings.Builder
	b.WriteString("kb_chunks_")
	for _, r := range kbID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (s *CollectionStore) ensureTable(ctx context.Context, table string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		metadata TEXT
	)`, table)
	if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("create collection table failed: %w", err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_doc ON %s(doc_id)`, table, table)
	if err := s.db.WithContext(ctx).Exec(idx).Error; err != nil {
		return fmt.Errorf("create collection index failed: %w", err)
	}
	return nil
}

func (s *CollectionStore) Add(ctx context.Context, kbID, docID string, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table := collectionTable(kbID)
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (doc_id, chunk_index, content, embedding, metadata) VALUES (?, ?, ?, ?, ?)`, table)
	for i, chunk := range chunks {
		embJSON, err := json.Marshal(embeddings[i])
		if err != nil {
			return fmt.Errorf("marshal embedding failed: %w", err)
		}
		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata failed: %w", err)
		}
		err = s.db.WithContext(ctx).
			Exec(stmt, docID, chunk.Metadata.ChunkIndex, chunk.Text, string(embJSON), string(metaJSON)).Error
		if err != nil {
			return fmt.Errorf("insert chunk failed: %w", err)
		}
	}
	return nil
}

type collectionRow struct {
	ID        uint64
	Content   string
	Embedding string
	Metadata  string
}

func (s *CollectionStore) loadRows(ctx context.Context, kbID string) ([]collectionRow, error) {
	table := collectionTable(kbID)
	var exists int64
	err := s.db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).
		Scan(&exists).Error
	if err != nil {
		return nil, fmt.Errorf("check collection table failed: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}

	var rows []collectionRow
	stmt := fmt.Sprintf(`SELECT id, content, embedding, metadata FROM %s`, table)
	if err := s.db.WithContext(ctx).Raw(stmt).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load collection rows failed: %w", err)
	}
	return rows, nil
}

func (s *CollectionStore) Query(ctx context.Context, kbID string, queryVector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.loadRows(ctx, kbID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id       uint64
		match    Match
		distance float64
	}
	candidates := make([]scored, 0, len(rows))
	for _, row := range rows {
		var emb []float32
		if err := json.Unmarshal([]byte(row.Embedding), &emb); err != nil {
			continue
		}
		dist, ok := cosineDistance(queryVector, emb)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{
			id: row.ID,
			match: Match{
				Text:     row.Content,
				Metadata: parseMetadata(row.Metadata),
				Distance: dist,
			},
			distance: dist,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, c.match)
	}
	return matches, nil
}

// SearchKeywords ranks chunks by how many query tokens they contain. It is a
// deliberately simple stand-in for BM25 ranking on the embedded backend.
func (s *CollectionStore) SearchKeywords(ctx context.Context, kbID, query string, topK int) ([]model.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	keywords := keywordSet(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.loadRows(ctx, kbID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id     uint64
		result model.RetrievalResult
	}
	candidates := make([]scored, 0, len(rows))
	for _, row := range rows {
		score := overlapScore(keywords, row.Content)
		if score == 0 {
			continue
		}
		candidates = append(candidates, scored{
			id: row.ID,
			result: model.RetrievalResult{
				Text:     row.Content,
				Metadata: parseMetadata(row.Metadata),
				Score:    float64(score),
				Source:   model.SourceBM25,
			},
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]model.RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c.result)
	}
	return results, nil
}

func (s *CollectionStore) DeleteDocument(ctx context.Context, kbID, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := collectionTable(kbID)
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE doc_id = ?`, table)
	if err := s.db.WithContext(ctx).Exec(stmt, docID).Error; err != nil {
		// Deleting from a collection that was never created is not an error.
		if strings.Contains(err.Error(), "no such table") {
			return nil
		}
		return fmt.Errorf("delete document chunks failed: %w", err)
	}
	return nil
}

func (s *CollectionStore) DeleteKnowledgeBase(ctx context.Context, kbID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, collectionTable(kbID))
	if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("drop collection table failed: %w", err)
	}
	return nil
}

// cosineDistance returns 1 - cosine similarity. ok is false when the vectors
// differ in length or either has zero magnitude.
func cosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), true
}
