package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChatMessage is one turn of the outbound conversation. A non-empty ImageURL
// makes the turn multimodal on the wire.
type ChatMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatConfig holds API settings for the chat-completion upstream
// (OpenAI-compatible).
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// UpstreamError is a non-success status from the completion upstream. Body is
// truncated so it can be relayed downstream verbatim.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

const upstreamErrorBodyLimit = 200

// Client talks to an OpenAI-compatible API for chat completion and embedding.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// NewClientWithHTTP is used by tests to point the client at a fake upstream.
func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient}
}

// wire shapes for /chat/completions. A plain text turn keeps the string
// content field; an image turn becomes a content-part array.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageRef `json:"image_url,omitempty"`
}

type wireImageRef struct {
	URL string `json:"url"`
}

func toWireMessages(messages []ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if m.ImageURL == "" {
			out = append(out, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []wirePart{}
		if m.Content != "" {
			parts = append(parts, wirePart{Type: "text", Text: m.Content})
		}
		parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageRef{URL: m.ImageURL}})
		out = append(out, wireMessage{Role: m.Role, Content: parts})
	}
	return out
}

// OpenStream opens the streaming completion request and hands the live
// response to the caller. On a non-success status the body is read (truncated)
// and returned as an *UpstreamError; the connection is already released.
// The caller owns resp.Body on success and must close it on every exit path.
func (c *Client) OpenStream(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (*http.Response, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return nil, ErrNotConfigured
	}

	reqBody := map[string]any{
		"model":       cfg.Model,
		"messages":    toWireMessages(messages),
		"stream":      true,
		"temperature": cfg.Temperature,
		"max_tokens":  cfg.MaxTokens,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build completion request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, upstreamErrorBodyLimit))
		_ = resp.Body.Close()
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	return resp, nil
}
