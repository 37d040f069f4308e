package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured is returned before any network attempt when API
	// credentials are missing.
	ErrNotConfigured = errors.New("llm api is not configured")

	// ErrEmbeddingUnavailable marks an embedding call that failed after all
	// retries. Callers skip retrieval for the turn; it is never fatal to the
	// chat turn itself.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// EmbeddingConfig holds API settings for the embedding upstream
// (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

const embedMaxRetries = 2

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, cfg, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response: %w", ErrEmbeddingUnavailable)
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one upstream call, one vector per input
// in the same order. The same payload is retried up to embedMaxRetries times
// on transport failures and non-success statuses; exhaustion surfaces as
// ErrEmbeddingUnavailable.
func (c *Client) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return nil, ErrNotConfigured
	}
	if len(texts) == 0 {
		return nil, nil
	}

	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		if s := strings.TrimSpace(t); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return nil, errors.New("no non-empty texts for embedding")
	}

	reqBody := map[string]any{
		"model": cfg.Model,
		"input": trimmed,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= embedMaxRetries; attempt++ {
		vectors, err := c.embedOnce(ctx, cfg, bodyBytes)
		if err == nil {
			if len(vectors) != len(trimmed) {
				return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs: %w",
					len(vectors), len(trimmed), ErrEmbeddingUnavailable)
			}
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}

func (c *Client) embedOnce(ctx context.Context, cfg EmbeddingConfig, body []byte) ([][]float32, error) {
	url := strings.TrimRight(cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}

	vectors := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		vectors[i] = parsed.Data[i].Embedding
	}
	return vectors, nil
}
