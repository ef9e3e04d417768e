package driven

import (
	"context"
	"errors"
)

// EmbeddingService generates vector embeddings from text.
//
// Note: This is separate from VectorIndex which stores and searches vectors.
// EmbeddingService generates vectors; VectorIndex stores them.
//
// Implementations include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Azure OpenAI deployments
//   - Ollama (all-minilm, nomic-embed-text) as the local model
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 1536, 3072).
	// This is known statically and must match the collection dimension.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// TransientError is implemented by provider errors caused by connectivity
// or credentials. Such failures may succeed on the next provider in a chain.
type TransientError interface {
	error
	Transient() bool
}

// ErrTransient can be wrapped by adapters without a typed error to mark a
// failure as eligible for fallback.
var ErrTransient = errors.New("transient provider failure")
