package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreflux/agoncore/internal/llm"
)

func TestChatStreamTokensAndDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := New(server.URL, "", 5*time.Second)
	var tokens []string
	var sawDone bool

	err := p.ChatStream(context.Background(), llm.Request{
		Model:    "gpt-test",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}, func(chunk llm.LLMChunk) error {
		switch chunk.Kind {
		case llm.ChunkToken:
			tokens = append(tokens, chunk.Token)
		case llm.ChunkDone:
			sawDone = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "Hel" || tokens[1] != "lo" {
		t.Fatalf("got tokens %v", tokens)
	}
	if !sawDone {
		t.Fatalf("expected a Done chunk")
	}
}

func TestChatStreamToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"loc\""}}]}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := New(server.URL, "", 5*time.Second)
	var calls []llm.ToolCall

	err := p.ChatStream(context.Background(), llm.Request{
		Model:    "gpt-test",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "weather?"}},
	}, func(chunk llm.LLMChunk) error {
		if chunk.Kind == llm.ChunkToolCalls {
			calls = append(calls, chunk.ToolCalls...)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0].Name != "get_weather" || calls[0].ID != "call_1" {
		t.Fatalf("got calls %+v", calls)
	}
}

func TestChatStreamAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid key"}`)
	}))
	defer server.Close()

	p := New(server.URL, "", 5*time.Second)
	err := p.ChatStream(context.Background(), llm.Request{
		Model:    "gpt-test",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}, func(llm.LLMChunk) error { return nil })

	var llmErr *llm.Error
	if err == nil {
		t.Fatalf("expected error")
	}
	ok := false
	if e, isErr := err.(*llm.Error); isErr {
		llmErr = e
		ok = true
	}
	if !ok || llmErr.Kind != llm.ErrAuth {
		t.Fatalf("expected Auth error, got %v", err)
	}
}

func TestChatStreamRequiresModel(t *testing.T) {
	p := New("http://example.invalid", "", time.Second)
	err := p.ChatStream(context.Background(), llm.Request{}, func(llm.LLMChunk) error { return nil })
	if err == nil {
		t.Fatalf("expected error for missing model")
	}
}
