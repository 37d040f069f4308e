package model

import "fmt"

// Retrieval source tags.
const (
	SourceVector  = "vector"
	SourceBM25    = "bm25"
	SourceHistory = "history"
)

// ChunkMetadata travels with every stored chunk. DocID plus ChunkIndex is the
// chunk identity used for deduplication across result lists.
type ChunkMetadata struct {
	Filename    string `json:"filename"`
	DocID       string `json:"doc_id"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// Key returns the dedup identity (document id, chunk index).
func (m ChunkMetadata) Key() string {
	return fmt.Sprintf("%s_%d", m.DocID, m.ChunkIndex)
}

// RetrievalResult is transient: it exists only within one retrieval call and
// is never persisted.
type RetrievalResult struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
	Source   string        `json:"source"`
}
