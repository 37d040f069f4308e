// Package relay forwards an upstream streaming completion to a downstream SSE
// client, reassembling upstream frames and persisting the finished assistant
// reply before the terminal frame is sent.
package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeankeim/voice-brainstorm/internal/ai"
)

// State is the relay lifecycle. Transitions are
// Connecting -> Streaming -> Completing -> Closed, with Failed reachable from
// any non-terminal state.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateCompleting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleting:
		return "completing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const doneSentinel = "[DONE]"

// MessageSink persists the assistant reply when the upstream stream completes.
type MessageSink interface {
	SaveAssistantMessage(ctx context.Context, sessionID, content string) error
}

type Relay struct {
	client *ai.Client
	sink   MessageSink
	logger zerolog.Logger
}

func New(client *ai.Client, sink MessageSink, logger zerolog.Logger) *Relay {
	return &Relay{client: client, sink: sink, logger: logger}
}

// Stream opens the upstream completion and forwards content deltas to w as
// SSE frames, in arrival order, until the upstream signals completion. On
// completion the accumulated reply is persisted synchronously before the
// terminal frame goes out; a persistence failure is logged, not surfaced. The
// upstream connection is released on every exit path. A downstream write
// failure is treated as the client hanging up and ends the relay quietly.
func (r *Relay) Stream(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, sessionID string, w http.ResponseWriter) State {
	flusher, _ := w.(http.Flusher)

	state := StateConnecting
	resp, err := r.client.OpenStream(ctx, cfg, messages)
	if err != nil {
		r.logger.Error().Err(err).Str("session_id", sessionID).Msg("open upstream stream failed")
		r.writeErrorFrame(w, flusher, upstreamErrorText(err))
		return StateFailed
	}
	defer resp.Body.Close()

	state = StateStreaming
	var reply strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			r.logger.Debug().Str("session_id", sessionID).Msg("client disconnected during stream")
			return StateClosed
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			break
		}

		delta, ok := parseDelta(payload)
		if !ok {
			// Frames that are not valid JSON are skipped, not fatal.
			continue
		}
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if err := r.writeContentFrame(w, flusher, delta); err != nil {
			r.logger.Debug().Err(err).Str("session_id", sessionID).Msg("downstream write failed, closing relay")
			return StateClosed
		}
	}

	if err := scanner.Err(); err != nil {
		r.logger.Error().Err(err).Str("session_id", sessionID).Str("state", state.String()).Msg("upstream stream broke")
		r.writeErrorFrame(w, flusher, "upstream stream interrupted")
		return StateFailed
	}

	// EOF without the sentinel still counts as completion.
	state = StateCompleting
	if sessionID != "" && reply.Len() > 0 {
		if err := r.sink.SaveAssistantMessage(ctx, sessionID, reply.String()); err != nil {
			r.logger.Error().Err(err).Str("session_id", sessionID).Str("state", state.String()).Msg("persist assistant reply failed")
		}
	}

	if err := r.writeDoneFrame(w, flusher); err != nil {
		r.logger.Debug().Err(err).Str("session_id", sessionID).Msg("downstream write failed on terminal frame")
	}
	return StateClosed
}

// parseDelta extracts the content delta from one upstream chunk.
func parseDelta(payload string) (string, bool) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", true
	}
	return chunk.Choices[0].Delta.Content, true
}

func (r *Relay) writeContentFrame(w http.ResponseWriter, flusher http.Flusher, content string) error {
	frame, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	return writeFrame(w, flusher, string(frame))
}

func (r *Relay) writeErrorFrame(w http.ResponseWriter, flusher http.Flusher, message string) {
	frame, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return
	}
	_ = writeFrame(w, flusher, string(frame))
	_ = writeFrame(w, flusher, doneSentinel)
}

func (r *Relay) writeDoneFrame(w http.ResponseWriter, flusher http.Flusher) error {
	return writeFrame(w, flusher, doneSentinel)
}

func writeFrame(w io.Writer, flusher http.Flusher, payload string) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// upstreamErrorText maps an open failure to the text put into the error
// frame. The upstream body is already truncated by the client and goes out
// verbatim so the caller can see what the model service said.
func upstreamErrorText(err error) string {
	var upstream *ai.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Body != "" {
			return fmt.Sprintf("model service error (status %d): %s", upstream.Status, upstream.Body)
		}
		return fmt.Sprintf("model service error (status %d)", upstream.Status)
	}
	if errors.Is(err, ai.ErrNotConfigured) {
		return "model service is not configured"
	}
	return "failed to reach model service"
}
