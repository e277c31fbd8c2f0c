// Package gemini translates between the internal llm contract and the
// Google Gemini streamGenerateContent wire format (spec.md §4.H).
//
// Grounded on the teacher's HTTP-streaming idiom in
// internal/providers/ollama/provider.go, generalized to Gemini's
// contents/parts/functionCall shape; no genai SDK appears in any teacher
// go.mod (only an other_examples/ langchaingo-wrapped reference snippet
// uses one), so this stays on encoding/json + net/http like every other
// translator in this module.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreflux/agoncore/internal/llm"
	"github.com/coreflux/agoncore/internal/metrics"
	"github.com/coreflux/agoncore/internal/ssecodec"
)

// Provider is a Provider translating against the Gemini API.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string

	nextCallID int
}

// New constructs a Gemini provider. baseURL has no trailing slash.
func New(baseURL, apiKey string, timeout time.Duration) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type functionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type toolSet struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []content          `json:"contents"`
	Tools             []toolSet          `json:"tools,omitempty"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig  `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

func toContents(messages []llm.Message) ([]content, *systemInstruction) {
	var contents []content
	var sys *systemInstruction
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			sys = &systemInstruction{Parts: []part{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		var parts []part
		if m.Content != "" {
			parts = append(parts, part{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
			parts = append(parts, part{FunctionCall: &functionCall{Name: tc.Name, Args: args}})
		}
		if m.Role == llm.RoleTool {
			var resp map[string]any
			_ = json.Unmarshal([]byte(m.Content), &resp)
			parts = []part{{FunctionResponse: &functionResponse{Name: m.ToolCallID, Response: resp}}}
		}
		contents = append(contents, content{Role: role, Parts: parts})
	}
	return contents, sys
}

func toToolSets(tools []llm.ToolSchema) []toolSet {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]functionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, functionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return []toolSet{{FunctionDeclarations: decls}}
}

// ChatStream issues a streamGenerateContent request and translates each
// candidate part into an LLMChunk, emitting Done when a candidate carries
// a non-empty finishReason.
func (p *Provider) ChatStream(ctx context.Context, req llm.Request, sink llm.Sink) error {
	if req.Model == "" {
		return &llm.Error{Kind: llm.ErrStream, Err: fmt.Errorf("model is required")}
	}

	contents, sys := toContents(req.Messages)
	payload := generateRequest{
		Contents:          contents,
		Tools:             toToolSets(req.Tools),
		SystemInstruction: sys,
	}
	if req.MaxOutputTokens > 0 {
		payload.GenerationConfig = &generationConfig{MaxOutputTokens: req.MaxOutputTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &llm.Error{Kind: llm.ErrJSON, Err: err}
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s", p.baseURL, req.Model, url.QueryEscape(p.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &llm.Error{Kind: llm.ErrHTTP, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

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
	reader := ssecodec.NewReader(scanner)

	for {
		ev, ok := reader.Next()
		if !ok {
			if err := reader.Err(); err != nil {
				return &llm.Error{Kind: llm.ErrStream, Err: err}
			}
			break
		}
		data := strings.TrimSpace(ev.Data)
		if data == "" {
			continue
		}
		var parsed generateResponse
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return &llm.Error{Kind: llm.ErrStream, Err: fmt.Errorf("invalid chunk json: %w", err)}
		}
		if err := p.emitCandidates(parsed.Candidates, sink); err != nil {
			return err
		}
		for _, c := range parsed.Candidates {
			if c.FinishReason != "" {
				return sink(llm.LLMChunk{Kind: llm.ChunkDone})
			}
		}
	}
	return sink(llm.LLMChunk{Kind: llm.ChunkDone})
}

func (p *Provider) emitCandidates(candidates []candidate, sink llm.Sink) error {
	for _, c := range candidates {
		for _, part := range c.Content.Parts {
			if part.Text != "" {
				metrics.IncChunk("gemini")
				if err := sink(llm.LLMChunk{Kind: llm.ChunkToken, Token: part.Text}); err != nil {
					return err
				}
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return &llm.Error{Kind: llm.ErrJSON, Err: err}
				}
				p.nextCallID++
				call := llm.ToolCall{
					ID:        "gemini-call-" + strconv.Itoa(p.nextCallID),
					Type:      "function",
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				}
				metrics.IncChunk("gemini")
				if err := sink(llm.LLMChunk{Kind: llm.ChunkToolCalls, ToolCalls: []llm.ToolCall{call}}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ListModels is not offered by the Gemini translator (spec.md §4.G
// defaults it to empty when a provider has nothing to report).
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return nil, nil
}
