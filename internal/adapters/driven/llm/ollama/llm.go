// Package ollama provides a chat provider adapter for local Ollama models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/apierr"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// Ensure ChatService implements the interface.
var _ driven.ChatProvider = (*ChatService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 300 * time.Second
)

// Config holds configuration for the Ollama chat service.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model to use (default: llama3.2).
	Model string

	// Timeout is the request timeout (default: 300s, local models can be slow).
	Timeout time.Duration
}

// ChatService provides chat completions using a local Ollama server.
type ChatService struct {
	client *api.Client
	model  string
}

// NewChatService creates a new Ollama chat service.
func NewChatService(cfg Config) (*ChatService, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama URL: %w", domain.ErrConfiguration, err)
	}

	return &ChatService{
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		model:  cfg.Model,
	}, nil
}

// Complete sends a non-streaming chat request.
func (s *ChatService) Complete(
	ctx context.Context,
	systemPrompt string,
	messages []driven.ChatMessage,
	opts driven.ChatOptions,
) (string, error) {
	chatMessages := make([]api.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		chatMessages = append(chatMessages, api.Message{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		chatMessages = append(chatMessages, api.Message{Role: msg.Role, Content: msg.Content})
	}

	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    s.model,
		Messages: chatMessages,
		Stream:   &stream,
		Options:  options,
	}

	var sb strings.Builder
	err := s.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", apierr.ChatError(apierr.Ollama(err))
	}

	return strings.TrimSpace(sb.String()), nil
}

// ModelName returns the name of the chat model being used.
func (s *ChatService) ModelName() string {
	return s.model
}

// Ping checks the Ollama server is up.
func (s *ChatService) Ping(ctx context.Context) error {
	if err := s.client.Heartbeat(ctx); err != nil {
		return apierr.ChatError(apierr.Ollama(err))
	}
	return nil
}

// Close releases resources.
func (s *ChatService) Close() error {
	return nil
}
