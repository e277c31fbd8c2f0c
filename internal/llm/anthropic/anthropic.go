// Package anthropic re-encodes an internal LLMChunk stream into the
// Anthropic Messages SSE event sequence, and its legacy /v1/complete flat
// completion events (spec.md §4.H). Unlike the OpenAI and Gemini
// translators, this direction runs server-side: the core produces
// Anthropic-shaped output for a pass-through endpoint rather than
// consuming it.
//
// Grounded on the teacher's manual SSE-writing idiom (no translator in
// the corpus emits SSE directly, but internal/providers/ollama/provider.go's
// json.NewDecoder streaming loop is the model for "one event struct per
// line, flushed immediately") — event encoding here is a thin
// encoding/json + fmt.Fprintf writer, matching the rest of the module's
// avoidance of any third-party SSE/event-stream library.
package anthropic

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/coreflux/agoncore/internal/llm"
	"github.com/coreflux/agoncore/internal/metrics"
)

type messageStartPayload struct {
	Type    string         `json:"type"`
	Message map[string]any `json:"message"`
}

type contentBlockStartPayload struct {
	Type         string         `json:"type"`
	Index        int            `json:"index"`
	ContentBlock map[string]any `json:"content_block"`
}

type textDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type inputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

type contentBlockDeltaPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta any    `json:"delta"`
}

type contentBlockStopPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type messageDeltaPayload struct {
	Type  string         `json:"type"`
	Delta map[string]any `json:"delta"`
}

// Encoder re-encodes one LLMChunk stream as Anthropic Messages SSE events,
// writing each as `event: <name>\ndata: <json>\n\n` to w.
type Encoder struct {
	w io.Writer

	nextIndex    int
	textOpened   bool
	textIndex    int
	sawFirstText bool
}

// NewEncoder wraps w in an Anthropic Messages event encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) writeEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &llm.Error{Kind: llm.ErrJSON, Err: err}
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return &llm.Error{Kind: llm.ErrHTTP, Err: err}
	}
	return nil
}

// Start emits message_start with the given message id/model.
func (e *Encoder) Start(id, model string) error {
	return e.writeEvent("message_start", messageStartPayload{
		Type: "message_start",
		Message: map[string]any{
			"id":    id,
			"type":  "message",
			"role":  "assistant",
			"model": model,
		},
	})
}

// Feed consumes one internal chunk, re-encoding it to the Anthropic event
// sequence described in spec.md §4.H.
func (e *Encoder) Feed(chunk llm.LLMChunk) error {
	switch chunk.Kind {
	case llm.ChunkToken:
		if !e.sawFirstText {
			e.sawFirstText = true
			e.textOpened = true
			e.textIndex = e.nextIndex
			e.nextIndex++
			if err := e.writeEvent("content_block_start", contentBlockStartPayload{
				Type:         "content_block_start",
				Index:        e.textIndex,
				ContentBlock: map[string]any{"type": "text"},
			}); err != nil {
				return err
			}
		}
		metrics.IncChunk("anthropic")
		return e.writeEvent("content_block_delta", contentBlockDeltaPayload{
			Type:  "content_block_delta",
			Index: e.textIndex,
			Delta: textDelta{Type: "text_delta", Text: chunk.Token},
		})

	case llm.ChunkToolCalls:
		for _, call := range chunk.ToolCalls {
			index := e.nextIndex
			e.nextIndex++
			if err := e.writeEvent("content_block_start", contentBlockStartPayload{
				Type:  "content_block_start",
				Index: index,
				ContentBlock: map[string]any{
					"type":  "tool_use",
					"id":    call.ID,
					"name":  call.Name,
					"input": map[string]any{},
				},
			}); err != nil {
				return err
			}
			metrics.IncChunk("anthropic")
			if err := e.writeEvent("content_block_delta", contentBlockDeltaPayload{
				Type:  "content_block_delta",
				Index: index,
				Delta: inputJSONDelta{Type: "input_json_delta", PartialJSON: call.Arguments},
			}); err != nil {
				return err
			}
			if err := e.writeEvent("content_block_stop", contentBlockStopPayload{Type: "content_block_stop", Index: index}); err != nil {
				return err
			}
		}
		return nil

	case llm.ChunkDone:
		if err := e.writeEvent("message_delta", messageDeltaPayload{
			Type:  "message_delta",
			Delta: map[string]any{"stop_reason": "end_turn"},
		}); err != nil {
			return err
		}
		if err := e.writeEvent("message_stop", map[string]any{"type": "message_stop"}); err != nil {
			return err
		}
		_, err := fmt.Fprint(e.w, "data: [DONE]\n\n")
		if err != nil {
			return &llm.Error{Kind: llm.ErrHTTP, Err: err}
		}
		return nil
	}
	return nil
}

// LegacyEncoder re-encodes an LLMChunk stream as the legacy /v1/complete
// flat completion events.
type LegacyEncoder struct {
	w     io.Writer
	model string
}

// NewLegacyEncoder wraps w in a legacy /v1/complete event encoder.
func NewLegacyEncoder(w io.Writer, model string) *LegacyEncoder {
	return &LegacyEncoder{w: w, model: model}
}

type legacyCompletionPayload struct {
	Type       string `json:"type"`
	Completion string `json:"completion"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
}

// Feed consumes one chunk, emitting a legacy completion event per token
// and a final event with stop_reason="stop_sequence" on Done.
func (e *LegacyEncoder) Feed(chunk llm.LLMChunk) error {
	var payload legacyCompletionPayload
	switch chunk.Kind {
	case llm.ChunkToken:
		payload = legacyCompletionPayload{Type: "completion", Completion: chunk.Token, Model: e.model}
	case llm.ChunkDone:
		payload = legacyCompletionPayload{Type: "completion", Completion: "", Model: e.model, StopReason: "stop_sequence"}
	default:
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return &llm.Error{Kind: llm.ErrJSON, Err: err}
	}
	metrics.IncChunk("anthropic-legacy")
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return &llm.Error{Kind: llm.ErrHTTP, Err: err}
	}
	return nil
}
