package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/coreflux/agoncore/internal/agonlog"
	"github.com/coreflux/agoncore/internal/llm"
	"github.com/coreflux/agoncore/internal/llm/anthropic"
	"github.com/coreflux/agoncore/internal/llm/gemini"
	"github.com/coreflux/agoncore/internal/llm/openai"
)

var (
	chatProviderName string
	chatBaseURL      string
	chatAPIKey       string
	chatModel        string
	chatPrompt       string
	chatAsAnthropic  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "drive a streaming chat request against a configured provider and print chunks as they arrive",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatProviderName, "provider", "openai", "upstream provider to drive: openai|gemini")
	chatCmd.Flags().StringVar(&chatBaseURL, "base-url", "", "provider base URL")
	chatCmd.Flags().StringVar(&chatAPIKey, "api-key", "", "provider API key")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model name")
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", "Hello!", "user prompt")
	chatCmd.Flags().BoolVar(&chatAsAnthropic, "as-anthropic", false, "re-encode the upstream stream as Anthropic Messages SSE events instead of printing plain tokens")
}

func buildProvider() (llm.Provider, error) {
	switch chatProviderName {
	case "openai":
		return openai.New(chatBaseURL, chatAPIKey, 60*time.Second), nil
	case "gemini":
		return gemini.New(chatBaseURL, chatAPIKey, 60*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (anthropic is a re-encoder reached via --as-anthropic, not an upstream provider)", chatProviderName)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatModel == "" {
		return fmt.Errorf("--model is required")
	}
	provider, err := buildProvider()
	if err != nil {
		return err
	}

	requestID := uuid.NewString()
	agonlog.Event("chat request started: id=%s provider=%s model=%s", requestID, chatProviderName, chatModel)

	req := llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: chatPrompt}},
		Model:    chatModel,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if chatAsAnthropic {
		enc := anthropic.NewEncoder(os.Stdout)
		if err := enc.Start(requestID, chatModel); err != nil {
			return err
		}
		return provider.ChatStream(ctx, req, enc.Feed)
	}

	token := color.New(color.FgCyan)
	toolCall := color.New(color.FgYellow)

	return provider.ChatStream(ctx, req, func(chunk llm.LLMChunk) error {
		switch chunk.Kind {
		case llm.ChunkToken:
			token.Print(chunk.Token)
		case llm.ChunkToolCalls:
			for _, call := range chunk.ToolCalls {
				toolCall.Fprintf(os.Stderr, "\n[tool call] %s(%s)\n", call.Name, call.Arguments)
			}
		case llm.ChunkDone:
			fmt.Println()
		}
		return nil
	})
}
