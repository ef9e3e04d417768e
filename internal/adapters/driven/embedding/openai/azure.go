package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*AzureEmbeddingService)(nil)

// DefaultAzureAPIVersion is used when no api-version is configured.
const DefaultAzureAPIVersion = "2024-02-01"

// AzureConfig configures an Azure OpenAI embedding deployment.
type AzureConfig struct {
	// Endpoint is the resource endpoint, e.g. https://myres.openai.azure.com.
	Endpoint string
	APIKey   string

	// Deployment doubles as the model name.
	Deployment string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AzureEmbeddingService embeds text with an Azure OpenAI deployment.
type AzureEmbeddingService struct {
	wire
	endpoint   string
	deployment string
	apiVersion string
	dimensions int
}

// NewAzureEmbeddingService creates an Azure OpenAI embedding service.
func NewAzureEmbeddingService(cfg AzureConfig) (*AzureEmbeddingService, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: azure endpoint and API key are required", domain.ErrConfiguration)
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("%w: azure deployment is required", domain.ErrConfiguration)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAzureAPIVersion
	}

	return &AzureEmbeddingService{
		wire:       newWire("azure", cfg.HTTPClient, cfg.Timeout, http.Header{"api-key": {cfg.APIKey}}),
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		dimensions: domain.HostedEmbeddingDimensions(cfg.Deployment),
	}, nil
}

func (s *AzureEmbeddingService) url(path string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		s.endpoint, url.PathEscape(s.deployment), path, url.QueryEscape(s.apiVersion))
}

// The deployment fixes the model, so the request body carries none.

func (s *AzureEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.url("embeddings"), "", text)
}

func (s *AzureEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, s.url("embeddings"), "", texts)
}

func (s *AzureEmbeddingService) Dimensions() int   { return s.dimensions }
func (s *AzureEmbeddingService) ModelName() string { return s.deployment }
func (s *AzureEmbeddingService) Close() error      { return nil }

// Ping embeds a short string. Azure has no deployment-scoped key check.
func (s *AzureEmbeddingService) Ping(ctx context.Context) error {
	_, err := s.Embed(ctx, "ping")
	return err
}
