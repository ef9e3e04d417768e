// Package openai provides chat provider adapters for OpenAI and Azure OpenAI.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
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
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultModel           = domain.DefaultChatModel
	DefaultTimeout         = 120 * time.Second
	DefaultAzureAPIVersion = "2024-02-01"
)

// Config holds configuration for an OpenAI-compatible chat service.
type Config struct {
	// APIKey is the OpenAI or Azure API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the chat model, or the deployment name for Azure.
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Azure switches to deployment-scoped URLs and the api-key header.
	// BaseURL must then be the resource endpoint.
	Azure bool

	// APIVersion is the Azure api-version query parameter.
	APIVersion string

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// ChatService sends chat completions to OpenAI or an Azure OpenAI deployment.
type ChatService struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	azure      bool
	apiVersion string
	provider   string
}

// chatCompletionRequest is the /chat/completions request format.
type chatCompletionRequest struct {
	Model       string              `json:"model,omitempty"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

// chatCompletionMsg is the chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewChatService creates a new OpenAI or Azure OpenAI chat service.
func NewChatService(cfg Config) (*ChatService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", domain.ErrConfiguration)
	}
	if cfg.Azure && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: azure endpoint is required", domain.ErrConfiguration)
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
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAzureAPIVersion
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	provider := "openai"
	if cfg.Azure {
		provider = "azure"
	}

	return &ChatService{
		client:     client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		provider:   provider,
	}, nil
}

// Complete sends the system prompt and conversation and returns the reply.
func (s *ChatService) Complete(
	ctx context.Context,
	systemPrompt string,
	messages []driven.ChatMessage,
	opts driven.ChatOptions,
) (string, error) {
	chatMessages := make([]chatCompletionMsg, 0, len(messages)+1)
	if systemPrompt != "" {
		chatMessages = append(chatMessages, chatCompletionMsg{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		chatMessages = append(chatMessages, chatCompletionMsg{Role: msg.Role, Content: msg.Content})
	}

	reqBody := chatCompletionRequest{
		Messages:    chatMessages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if !s.azure {
		reqBody.Model = s.model
	}

	var chatResp chatCompletionResponse
	err := apierr.Do(ctx, s.client, apierr.Call{
		Provider: s.provider,
		URL:      s.endpoint("chat/completions"),
		Header:   s.authHeader(),
		Body:     reqBody,
	}, &chatResp)
	if err != nil {
		return "", apierr.ChatError(err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: no choices returned", domain.ErrChatProvider, s.provider)
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

func (s *ChatService) endpoint(path string) string {
	if s.azure {
		return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
			s.baseURL, url.PathEscape(s.model), path, url.QueryEscape(s.apiVersion))
	}
	return s.baseURL + "/" + path
}

func (s *ChatService) authHeader() http.Header {
	if s.azure {
		return http.Header{"api-key": {s.apiKey}}
	}
	return apierr.Bearer(s.apiKey)
}

// ModelName returns the chat model or deployment name.
func (s *ChatService) ModelName() string {
	return s.model
}

// Ping validates credentials. OpenAI lists models; Azure sends a one-token completion.
func (s *ChatService) Ping(ctx context.Context) error {
	if s.azure {
		_, err := s.Complete(ctx, "", []driven.ChatMessage{{Role: "user", Content: "ping"}},
			driven.ChatOptions{MaxTokens: 1})
		return err
	}

	return apierr.ChatError(apierr.Do(ctx, s.client, apierr.Call{
		Provider: s.provider,
		Method:   http.MethodGet,
		URL:      s.baseURL + "/models",
		Header:   s.authHeader(),
	}, nil))
}

// Close releases resources.
func (s *ChatService) Close() error {
	return nil
}
