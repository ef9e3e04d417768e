// Package ollama provides the local embedding fallback backed by an Ollama
// server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/apierr"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = domain.DefaultLocalEmbeddingModel
	DefaultTimeout = 30 * time.Second
)

// Config configures the local embedder. Dimensions is only needed for
// models missing from the domain dimension table.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
}

// EmbeddingService embeds text with a locally served model.
type EmbeddingService struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewEmbeddingService resolves the model's dimension up front so
// collections can be sized before the first call.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dim := cfg.Dimensions
	if dim == 0 {
		dim = domain.EmbeddingDimensions()[cfg.Model]
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: unknown dimension for local embedding model %q", domain.ErrConfiguration, cfg.Model)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama URL: %w", domain.ErrConfiguration, err)
	}

	return &EmbeddingService{
		client:     api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		model:      cfg.Model,
		dimensions: dim,
	}, nil
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request. A response with a different
// number of vectors is an error rather than a partial result.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := s.client.Embed(ctx, &api.EmbedRequest{Model: s.model, Input: texts})
	if err != nil {
		return nil, apierr.Ollama(err)
	}
	if got := len(resp.Embeddings); got != len(texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(texts), got)
	}
	return resp.Embeddings, nil
}

func (s *EmbeddingService) Dimensions() int   { return s.dimensions }
func (s *EmbeddingService) ModelName() string { return s.model }
func (s *EmbeddingService) Close() error      { return nil }

// Ping checks the server is reachable.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return apierr.Ollama(s.client.Heartbeat(ctx))
}
