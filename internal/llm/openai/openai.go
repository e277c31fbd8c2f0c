// Package openai translates between the internal llm contract and the
// OpenAI-compatible chat completions wire format (spec.md §4.H): SSE
// `data:` lines of JSON chunks terminated by a literal `data: [DONE]`.
//
// Grounded on the teacher's internal/providers/ollama/provider.go for its
// net/http + manual streaming-decode idiom (http.Client with a context
// timeout, bufio/json.Decoder over the response body, tool-call struct
// shapes) generalized from Ollama's own streaming format to the
// OpenAI-compatible delta format, plus its LoadedModels (GET /api/ps) as
// the grounding for this translator's optional ListModels.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coreflux/agoncore/internal/llm"
	"github.com/coreflux/agoncore/internal/metrics"
)

// Provider is a Provider translating against an OpenAI-compatible endpoint.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// New constructs an OpenAI-compatible provider. baseURL has no trailing slash.
func New(baseURL, apiKey string, timeout time.Duration) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireToolSchema struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatRequest struct {
	Model     string           `json:"model"`
	Stream    bool             `json:"stream"`
	Messages  []wireMessage    `json:"messages"`
	Tools     []wireToolSchema `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content,omitempty"`
			ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}

func toWireMessages(messages []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			idx := tc.Index
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				Index:    &idx,
				ID:       tc.ID,
				Type:     tc.Type,
				Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []llm.ToolSchema) []wireToolSchema {
	out := make([]wireToolSchema, 0, len(tools))
	for _, t := range tools {
		var ws wireToolSchema
		ws.Type = "function"
		ws.Function.Name = t.Name
		ws.Function.Description = t.Description
		ws.Function.Parameters = t.Parameters
		out = append(out, ws)
	}
	return out
}

// ChatStream issues a streaming chat completions request, emitting one
// LLMChunk per SSE data line, terminated by a Done chunk when the stream
// hits the `[DONE]` sentinel.
func (p *Provider) ChatStream(ctx context.Context, req llm.Request, sink llm.Sink) error {
	if req.Model == "" {
		return &llm.Error{Kind: llm.ErrStream, Err: fmt.Errorf("model is required")}
	}

	payload := chatRequest{
		Model:     req.Model,
		Stream:    true,
		Messages:  toWireMessages(req.Messages),
		Tools:     toWireTools(req.Tools),
		MaxTokens: req.MaxOutputTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &llm.Error{Kind: llm.ErrJSON, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return &llm.Error{Kind: llm.ErrHTTP, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &llm.Error{Kind: llm.ErrHTTP, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return llm.ClassifyStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			metrics.IncChunk("openai")
			return sink(llm.LLMChunk{Kind: llm.ChunkDone})
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return &llm.Error{Kind: llm.ErrStream, Err: fmt.Errorf("invalid chunk json: %w", err)}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			metrics.IncChunk("openai")
			if err := sink(llm.LLMChunk{Kind: llm.ChunkToken, Token: delta.Content}); err != nil {
				return err
			}
		}
		if len(delta.ToolCalls) > 0 {
			calls := make([]llm.ToolCall, 0, len(delta.ToolCalls))
			for _, tc := range delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				calls = append(calls, llm.ToolCall{
					Index:     index,
					ID:        tc.ID,
					Type:      tc.Type,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			metrics.IncChunk("openai")
			if err := sink(llm.LLMChunk{Kind: llm.ChunkToolCalls, ToolCalls: calls}); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &llm.Error{Kind: llm.ErrStream, Err: err}
	}
	// stream ended without an explicit [DONE]: still terminate with Done
	// per the sum-type's ordering invariant.
	return sink(llm.LLMChunk{Kind: llm.ChunkDone})
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels queries the OpenAI-compatible /models listing, grounded on
// the teacher's LoadedModels GET-and-decode shape.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, &llm.Error{Kind: llm.ErrHTTP, Err: err}
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{Kind: llm.ErrHTTP, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, llm.ClassifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &llm.Error{Kind: llm.ErrJSON, Err: err}
	}
	names := make([]string, len(parsed.Data))
	for i, m := range parsed.Data {
		names[i] = m.ID
	}
	return names, nil
}
