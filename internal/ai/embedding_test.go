package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func embeddingResponse(count, dim int) map[string]any {
	data := make([]map[string]any, count)
	for i := range data {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(i + j)
		}
		data[i] = map[string]any{"embedding": vec}
	}
	return map[string]any{"data": data}
}

func TestEmbedBatchRetriesSamePayload(t *testing.T) {
	var attempts atomic.Int32
	var firstBody, lastBody string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		body, _ := io.ReadAll(r.Body)
		if n == 1 {
			firstBody = string(body)
		}
		lastBody = string(body)

		if n < 3 {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(embeddingResponse(2, 4))
	}))
	defer upstream.Close()

	client := NewClientWithHTTP(upstream.Client())
	cfg := EmbeddingConfig{BaseURL: upstream.URL, APIKey: "key", Model: "embed"}

	vectors, err := client.EmbedBatch(context.Background(), cfg, []string{"one", "two"})
	if err != nil {
		t.Fatalf("expected success on final attempt, got %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	if firstBody != lastBody {
		t.Fatal("retry must resend the identical payload")
	}
}

func TestEmbedBatchExhaustionIsUnavailable(t *testing.T) {
	var attempts atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	client := NewClientWithHTTP(upstream.Client())
	cfg := EmbeddingConfig{BaseURL: upstream.URL, APIKey: "key", Model: "embed"}

	_, err := client.EmbedBatch(context.Background(), cfg, []string{"text"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	// Initial attempt plus the bounded retries.
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestEmbedBatchMissingConfigSkipsNetwork(t *testing.T) {
	var attempts atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer upstream.Close()

	client := NewClientWithHTTP(upstream.Client())
	_, err := client.EmbedBatch(context.Background(), EmbeddingConfig{BaseURL: upstream.URL}, []string{"text"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if attempts.Load() != 0 {
		t.Fatal("missing config must be rejected before any request")
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse(1, 4))
	}))
	defer upstream.Close()

	client := NewClientWithHTTP(upstream.Client())
	cfg := EmbeddingConfig{BaseURL: upstream.URL, APIKey: "key", Model: "embed"}

	_, err := client.EmbedBatch(context.Background(), cfg, []string{"one", "two"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable on count mismatch, got %v", err)
	}
}

func TestEmbedBatchCanceledContextStopsRetries(t *testing.T) {
	var attempts atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClientWithHTTP(upstream.Client())
	cfg := EmbeddingConfig{BaseURL: upstream.URL, APIKey: "key", Model: "embed"}

	cancel()
	_, err := client.EmbedBatch(ctx, cfg, []string{"text"})
	if err == nil {
		t.Fatal("expected an error with a canceled context")
	}
	if attempts.Load() > 1 {
		t.Fatalf("canceled context must not retry, got %d attempts", attempts.Load())
	}
}
