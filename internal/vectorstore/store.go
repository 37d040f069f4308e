// Package vectorstore holds the knowledge-base chunk stores. Two backends
// implement the same contract: a centralized PostgreSQL+pgvector table and an
// embedded SQLite collection-per-knowledge-base store. The backend is chosen
// once at startup and injected; nothing downstream branches on it again.
package vectorstore

import (
	"context"
	"strings"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

// EmbeddingDim is the fixed dimension of stored vectors.
const EmbeddingDim = 1536

// Chunk is the unit of storage: one text span plus its provenance.
type Chunk struct {
	Text     string
	Metadata model.ChunkMetadata
}

// Match is one vector-search hit. Distance is cosine distance (smaller is
// closer); callers convert to a relevance score with ScoreFromDistance.
type Match struct {
	Text     string
	Metadata model.ChunkMetadata
	Distance float64
}

// Store is the uniform contract over both backends.
type Store interface {
	// Add stores chunks and their embeddings for one document. Chunks and
	// embeddings correspond by index.
	Add(ctx context.Context, kbID, docID string, chunks []Chunk, embeddings [][]float32) error

	// Query returns up to topK matches ordered ascending by distance.
	Query(ctx context.Context, kbID string, queryVector []float32, topK int) ([]Match, error)

	// SearchKeywords returns up to topK results ordered descending by
	// relevance score, tagged model.SourceBM25.
	SearchKeywords(ctx context.Context, kbID, query string, topK int) ([]model.RetrievalResult, error)

	// DeleteDocument removes exactly the chunks belonging to docID, leaving
	// sibling documents intact.
	DeleteDocument(ctx context.Context, kbID, docID string) error

	// DeleteKnowledgeBase removes every chunk the backend holds for kbID.
	DeleteKnowledgeBase(ctx context.Context, kbID string) error
}

// ScoreFromDistance converts a distance to a relevance score.
func ScoreFromDistance(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}

// keywordSet lowercases and whitespace-splits a query into a unique token set.
func keywordSet(query string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, kw := range strings.Fields(strings.ToLower(query)) {
		set[kw] = struct{}{}
	}
	return set
}

// overlapScore counts how many query keywords occur as substrings of text.
func overlapScore(keywords map[string]struct{}, text string) int {
	lower := strings.ToLower(text)
	score := 0
	for kw := range keywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}
