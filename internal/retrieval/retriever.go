// Package retrieval implements hybrid knowledge-base retrieval: vector and
// keyword searches run against the injected store, their rankings are merged
// with reciprocal rank fusion, and the fused results are formatted into the
// prompt context block.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
	"github.com/jeankeim/voice-brainstorm/internal/model"
	"github.com/jeankeim/voice-brainstorm/internal/vectorstore"
)

type Retriever struct {
	client       *ai.Client
	embedCfg     ai.EmbeddingConfig
	store        vectorstore.Store
	topK         int
	vectorWeight float64
	logger       zerolog.Logger
}

func NewRetriever(client *ai.Client, embedCfg ai.EmbeddingConfig, store vectorstore.Store, topK int, vectorWeight float64, logger zerolog.Logger) *Retriever {
	return &Retriever{
		client:       client,
		embedCfg:     embedCfg,
		store:        store,
		topK:         topK,
		vectorWeight: vectorWeight,
		logger:       logger,
	}
}

// Retrieve runs the hybrid search for one query against one knowledge base.
// An unavailable embedding service degrades to keyword-only results; it never
// fails the chat turn.
func (r *Retriever) Retrieve(ctx context.Context, kbID, query string) ([]model.RetrievalResult, error) {
	var vectorResults []model.RetrievalResult

	vec, err := r.client.Embed(ctx, r.embedCfg, query)
	switch {
	case err == nil:
		matches, qerr := r.store.Query(ctx, kbID, vec, r.topK)
		if qerr != nil {
			return nil, fmt.Errorf("vector search failed: %w", qerr)
		}
		vectorResults = make([]model.RetrievalResult, 0, len(matches))
		for _, m := range matches {
			vectorResults = append(vectorResults, model.RetrievalResult{
				Text:     m.Text,
				Metadata: m.Metadata,
				Score:    vectorstore.ScoreFromDistance(m.Distance),
				Source:   model.SourceVector,
			})
		}
	case errors.Is(err, ai.ErrEmbeddingUnavailable), errors.Is(err, ai.ErrNotConfigured):
		r.logger.Warn().Err(err).Str("kb_id", kbID).Msg("embedding unavailable, skipping vector search")
	default:
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	keywordResults, err := r.store.SearchKeywords(ctx, kbID, query, r.topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	return FuseRRF(vectorResults, keywordResults, r.vectorWeight, r.topK), nil
}

// BuildContext renders retrieval results into the context block injected into
// the prompt. Knowledge-base hits carry their source file; history hits are
// labeled as earlier conversation.
func BuildContext(kbResults, historyResults []model.RetrievalResult) string {
	if len(kbResults) == 0 && len(historyResults) == 0 {
		return ""
	}

	var b strings.Builder
	n := 1
	for _, r := range kbResults {
		label := r.Metadata.Filename
		if label == "" {
			label = "knowledge base"
		}
		fmt.Fprintf(&b, "[%d] (from %s)\n%s\n\n", n, label, strings.TrimSpace(r.Text))
		n++
	}
	for _, r := range historyResults {
		fmt.Fprintf(&b, "[%d] (from earlier conversation)\n%s\n\n", n, strings.TrimSpace(r.Text))
		n++
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPrompt wraps the user's question with the retrieved context. An empty
// context block returns the question unchanged.
func FormatPrompt(contextBlock, question string) string {
	if contextBlock == "" {
		return question
	}
	return fmt.Sprintf(
		"Answer the question using the reference material below. If the material is not relevant, answer from your own knowledge and do not mention the material.\n\nReference material:\n%s\n\nQuestion: %s",
		contextBlock, question)
}
