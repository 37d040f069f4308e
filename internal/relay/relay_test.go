package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
)

type fakeSink struct {
	sessionID string
	content   string
	calls     int
	err       error
}

func (f *fakeSink) SaveAssistantMessage(_ context.Context, sessionID, content string) error {
	f.calls++
	f.sessionID = sessionID
	f.content = content
	return f.err
}

func sseUpstream(t *testing.T, write func(w http.ResponseWriter, flush func())) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("upstream writer does not flush")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		write(w, flusher.Flush)
	}))
}

func chunkFrame(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]string{"content": content}},
		},
	})
	return fmt.Sprintf("data: %s\n\n", payload)
}

// dataFrames extracts the data payloads the relay wrote downstream.
func dataFrames(body string) []string {
	var frames []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	return frames
}

func testConfig(baseURL string) ai.ChatConfig {
	return ai.ChatConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
	}
}

func TestStreamForwardsChunksInOrderAndPersists(t *testing.T) {
	upstream := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, chunkFrame("Hel"))
		flush()
		fmt.Fprint(w, chunkFrame("lo "))
		flush()
		fmt.Fprint(w, chunkFrame("world"))
		flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer upstream.Close()

	sink := &fakeSink{}
	r := New(ai.NewClientWithHTTP(upstream.Client()), sink, zerolog.Nop())

	rec := httptest.NewRecorder()
	state := r.Stream(context.Background(), testConfig(upstream.URL), []ai.ChatMessage{{Role: "user", Content: "hi"}}, "sess-1", rec)
	if state != StateClosed {
		t.Fatalf("expected state closed, got %s", state)
	}

	frames := dataFrames(rec.Body.String())
	want := []string{`{"content":"Hel"}`, `{"content":"lo "}`, `{"content":"world"}`, "[DONE]"}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %d: %v", len(want), len(frames), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frame %d = %q, want %q", i, frames[i], want[i])
		}
	}

	if sink.calls != 1 {
		t.Fatalf("expected 1 persist call, got %d", sink.calls)
	}
	if sink.sessionID != "sess-1" || sink.content != "Hello world" {
		t.Fatalf("persisted (%q, %q), want (sess-1, Hello world)", sink.sessionID, sink.content)
	}
}

func TestStreamReassemblesSplitFrames(t *testing.T) {
	frame := chunkFrame("split across writes")
	upstream := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		// Frame boundary never aligns with write boundary.
		fmt.Fprint(w, frame[:10])
		flush()
		fmt.Fprint(w, frame[10:])
		flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer upstream.Close()

	sink := &fakeSink{}
	r := New(ai.NewClientWithHTTP(upstream.Client()), sink, zerolog.Nop())

	rec := httptest.NewRecorder()
	if state := r.Stream(context.Background(), testConfig(upstream.URL), nil, "sess-2", rec); state != StateClosed {
		t.Fatalf("expected state closed, got %s", state)
	}
	if sink.content != "split across writes" {
		t.Fatalf("persisted %q, want the reassembled delta", sink.content)
	}
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	upstream := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, chunkFrame("good"))
		fmt.Fprint(w, "data: {not valid json\n\n")
		fmt.Fprint(w, chunkFrame(" frames"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer upstream.Close()

	sink := &fakeSink{}
	r := New(ai.NewClientWithHTTP(upstream.Client()), sink, zerolog.Nop())

	rec := httptest.NewRecorder()
	if state := r.Stream(context.Background(), testConfig(upstream.URL), nil, "sess-3", rec); state != StateClosed {
		t.Fatalf("expected state closed, got %s", state)
	}
	if sink.content != "good frames" {
		t.Fatalf("persisted %q, malformed frame should be skipped", sink.content)
	}
}

func TestStreamEmitsSingleDoneFrame(t *testing.T) {
	upstream := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, chunkFrame("x"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer upstream.Close()

	r := New(ai.NewClientWithHTTP(upstream.Client()), &fakeSink{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	r.Stream(context.Background(), testConfig(upstream.URL), nil, "sess-4", rec)

	if got := strings.Count(rec.Body.String(), "data: [DONE]"); got != 1 {
		t.Fatalf("expected exactly one terminal frame, got %d", got)
	}
}

func TestStreamUpstreamErrorBecomesErrorFrame(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model quota exhausted upstream-detail-xyz"}}`, http.StatusBadGateway)
	}))
	defer upstream.Close()

	sink := &fakeSink{}
	r := New(ai.NewClientWithHTTP(upstream.Client()), sink, zerolog.Nop())

	rec := httptest.NewRecorder()
	state := r.Stream(context.Background(), testConfig(upstream.URL), nil, "sess-5", rec)
	if state != StateFailed {
		t.Fatalf("expected state failed, got %s", state)
	}
	if sink.calls != 0 {
		t.Fatal("nothing should be persisted on an open failure")
	}

	frames := dataFrames(rec.Body.String())
	if len(frames) == 0 || !strings.Contains(frames[0], "error") {
		t.Fatalf("expected an error frame, got %v", frames)
	}
	if !strings.Contains(frames[0], "502") {
		t.Fatalf("error frame should carry the upstream status, got %q", frames[0])
	}
	// The truncated upstream body is relayed so the caller sees what the
	// model service actually said.
	if !strings.Contains(frames[0], "upstream-detail-xyz") {
		t.Fatalf("error frame should carry the upstream body, got %q", frames[0])
	}
}

func TestStreamWithoutSessionSkipsPersist(t *testing.T) {
	upstream := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, chunkFrame("ephemeral reply"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer upstream.Close()

	sink := &fakeSink{}
	r := New(ai.NewClientWithHTTP(upstream.Client()), sink, zerolog.Nop())

	rec := httptest.NewRecorder()
	if state := r.Stream(context.Background(), testConfig(upstream.URL), nil, "", rec); state != StateClosed {
		t.Fatalf("expected state closed, got %s", state)
	}
	if sink.calls != 0 {
		t.Fatal("no session identity was supplied, nothing should be persisted")
	}
	if !strings.Contains(rec.Body.String(), `{"content":"ephemeral reply"}`) {
		t.Fatal("content must still be forwarded without a session")
	}
}

func TestStreamPersistFailureStillCompletes(t *testing.T) {
	upstream := sseUpstream(t, func(w http.ResponseWriter, flush func()) {
		fmt.Fprint(w, chunkFrame("reply"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer upstream.Close()

	sink := &fakeSink{err: errors.New("db down")}
	r := New(ai.NewClientWithHTTP(upstream.Client()), sink, zerolog.Nop())

	rec := httptest.NewRecorder()
	state := r.Stream(context.Background(), testConfig(upstream.URL), nil, "sess-6", rec)
	if state != StateClosed {
		t.Fatalf("expected state closed despite persist failure, got %s", state)
	}
	if !strings.Contains(rec.Body.String(), "data: [DONE]") {
		t.Fatal("terminal frame missing after persist failure")
	}
}

func TestStreamMissingConfigFailsBeforeNetwork(t *testing.T) {
	r := New(ai.NewClient(), &fakeSink{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	state := r.Stream(context.Background(), ai.ChatConfig{}, nil, "sess-7", rec)
	if state != StateFailed {
		t.Fatalf("expected state failed, got %s", state)
	}
	if !strings.Contains(rec.Body.String(), "not configured") {
		t.Fatalf("expected a configuration error frame, got %q", rec.Body.String())
	}
}
