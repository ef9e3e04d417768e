package driven

import "context"

// ChatProvider produces chat completions for answer generation.
//
// Implementations include:
//   - OpenAI (GPT-4 family)
//   - Azure OpenAI deployments
//   - Anthropic (Claude)
//   - Ollama (local models)
//
// Errors must be distinguishable: authentication failures wrap
// domain.ErrChatAuth, rate limiting wraps domain.ErrChatRateLimit and
// everything else wraps domain.ErrChatProvider.
type ChatProvider interface {
	// Complete sends the system prompt and conversation and returns the reply text.
	Complete(ctx context.Context, systemPrompt string, messages []ChatMessage, opts ChatOptions) (string, error)

	// ModelName returns the name of the chat model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behaviour.
type ChatOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// ChatRouter selects the chat provider for a model name.
type ChatRouter interface {
	// ProviderFor returns a provider able to serve model.
	ProviderFor(model string) (ChatProvider, error)
}

// EmbeddingResolver builds the ordered provider list for an embedding model.
type EmbeddingResolver interface {
	// Resolve returns providers in fallback order. The first provider's
	// dimension is the collection dimension for the model.
	Resolve(model string) ([]EmbeddingService, error)
}
