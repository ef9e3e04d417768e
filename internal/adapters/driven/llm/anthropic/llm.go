// Package anthropic provides a chat provider adapter using the Anthropic API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/apierr"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// Ensure ChatService implements the interface.
var _ driven.ChatProvider = (*ChatService)(nil)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 2000

	anthropicVersion = "2023-06-01"
)

const providerName = "anthropic"

// Config configures the Messages API client. Only APIKey is required.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatService provides chat completions using the Anthropic Messages API.
type ChatService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewChatService creates a new Anthropic chat service.
func NewChatService(cfg Config) (*ChatService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &ChatService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Complete sends the conversation with the system prompt as the top-level
// system field. Anthropic requires max_tokens, so a default is applied.
func (s *ChatService) Complete(
	ctx context.Context,
	systemPrompt string,
	messages []driven.ChatMessage,
	opts driven.ChatOptions,
) (string, error) {
	reqBody := messagesRequest{
		Model:       s.model,
		System:      systemPrompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if reqBody.MaxTokens <= 0 {
		reqBody.MaxTokens = DefaultMaxTokens
	}
	for _, msg := range messages {
		reqBody.Messages = append(reqBody.Messages, messagesMessage{Role: msg.Role, Content: msg.Content})
	}

	var msgResp messagesResponse
	err := apierr.Do(ctx, s.client, apierr.Call{
		Provider: providerName,
		URL:      s.baseURL + "/v1/messages",
		Header: http.Header{
			"x-api-key":         {s.apiKey},
			"anthropic-version": {anthropicVersion},
		},
		Body: reqBody,
	}, &msgResp)
	if err != nil {
		return "", apierr.ChatError(err)
	}

	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic: no text content returned", domain.ErrChatProvider)
	}

	return strings.TrimSpace(sb.String()), nil
}

func (s *ChatService) ModelName() string { return s.model }

// Ping sends a minimal one-token request to validate the key.
func (s *ChatService) Ping(ctx context.Context) error {
	_, err := s.Complete(ctx, "", []driven.ChatMessage{{Role: "user", Content: "ping"}},
		driven.ChatOptions{MaxTokens: 1})
	return err
}

func (s *ChatService) Close() error { return nil }
