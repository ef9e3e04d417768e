// Package openai provides embedding adapters for OpenAI and Azure OpenAI.
// Both speak the same /embeddings wire format and differ only in URL
// layout and authentication header.
package openai

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

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Defaults for the hosted OpenAI endpoint.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = domain.DefaultFallbackEmbeddingModel
	DefaultTimeout = 60 * time.Second
)

// Config configures the OpenAI embedding service. Only APIKey is required.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// wire is the transport shared by both providers.
type wire struct {
	client   *http.Client
	provider string
	header   http.Header
}

func newWire(provider string, client *http.Client, timeout time.Duration, header http.Header) wire {
	if client == nil {
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return wire{client: client, provider: provider, header: header}
}

// embed posts texts to url and returns one vector per input, placed by the
// index the provider reports rather than by response order.
func (w wire) embed(ctx context.Context, url, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	err := apierr.Do(ctx, w.client, apierr.Call{
		Provider: w.provider,
		URL:      url,
		Header:   w.header,
		Body:     embeddingRequest{Model: model, Input: texts},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("%s: response index %d out of range", w.provider, item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		out[item.Index] = vec
	}
	return out, nil
}

func (w wire) embedOne(ctx context.Context, url, model, text string) ([]float32, error) {
	vecs, err := w.embed(ctx, url, model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, fmt.Errorf("%s: no embedding returned", w.provider)
	}
	return vecs[0], nil
}

// EmbeddingService embeds text with the OpenAI API.
type EmbeddingService struct {
	wire
	baseURL    string
	model      string
	dimensions int
}

// NewEmbeddingService creates an OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &EmbeddingService{
		wire:       newWire("openai", cfg.HTTPClient, cfg.Timeout, apierr.Bearer(cfg.APIKey)),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: domain.HostedEmbeddingDimensions(cfg.Model),
	}, nil
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.baseURL+"/embeddings", s.model, text)
}

func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, s.baseURL+"/embeddings", s.model, texts)
}

func (s *EmbeddingService) Dimensions() int   { return s.dimensions }
func (s *EmbeddingService) ModelName() string { return s.model }
func (s *EmbeddingService) Close() error      { return nil }

// Ping checks the key against the model listing, which costs no tokens.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return apierr.Do(ctx, s.client, apierr.Call{
		Provider: s.provider,
		Method:   http.MethodGet,
		URL:      s.baseURL + "/models",
		Header:   s.header,
	}, nil)
}
