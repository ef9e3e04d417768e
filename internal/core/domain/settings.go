package domain

import (
	"strconv"
	"strings"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or chat.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAzure is an Azure OpenAI deployment.
	AIProviderAzure AIProvider = "azure"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAzure, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAzure:
		return "Azure OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// Default model names.
const (
	DefaultEmbeddingModel         = "text-embedding-3-large"
	DefaultFallbackEmbeddingModel = "text-embedding-3-large"
	DefaultLocalEmbeddingModel    = "all-minilm"
	DefaultChatModel              = "gpt-4"
)

// Dimension used for Azure deployments and unrecognised hosted models.
const defaultHostedDimensions = 1536

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Local models
		"all-minilm":        384,
		"all-minilm-l6-v2":  384,
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// EmbeddingRoute selects which provider family serves an embedding model.
type EmbeddingRoute int

// Embedding routes.
const (
	// EmbeddingRouteLocal sends the model straight to the local provider.
	EmbeddingRouteLocal EmbeddingRoute = iota

	// EmbeddingRouteHosted tries OpenAI, then the local provider.
	EmbeddingRouteHosted

	// EmbeddingRouteAzure tries Azure, then OpenAI, then the local provider.
	EmbeddingRouteAzure
)

// RouteEmbeddingModel classifies an embedding model name.
func RouteEmbeddingModel(model string) EmbeddingRoute {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.Contains(m, "azure"):
		return EmbeddingRouteAzure
	case strings.HasPrefix(m, "text-embedding"), strings.Contains(m, "gpt"):
		return EmbeddingRouteHosted
	default:
		return EmbeddingRouteLocal
	}
}

// HostedEmbeddingDimensions returns the dimension of a hosted (OpenAI or Azure) model.
func HostedEmbeddingDimensions(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	if d, ok := EmbeddingDimensions()[m]; ok {
		return d
	}
	switch {
	case strings.Contains(m, "3-large"):
		return 3072
	case strings.Contains(m, "3-small"), strings.Contains(m, "ada"):
		return 1536
	default:
		return defaultHostedDimensions
	}
}

// RouteChatModel returns the provider that serves a chat model name.
// Unrecognised names are served by OpenAI using DefaultChatModel.
func RouteChatModel(model string) (AIProvider, string) {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.Contains(m, "azure"):
		return AIProviderAzure, model
	case strings.HasPrefix(m, "ollama/"):
		return AIProviderOllama, strings.TrimSpace(model)[len("ollama/"):]
	case strings.HasPrefix(m, "claude"):
		return AIProviderAnthropic, model
	case strings.Contains(m, "gpt"), strings.Contains(m, "openai"):
		return AIProviderOpenAI, model
	default:
		return AIProviderOpenAI, DefaultChatModel
	}
}

// AISettings holds provider credentials and endpoints.
type AISettings struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string

	AzureEndpoint   string
	AzureAPIKey     string
	AzureAPIVersion string

	AnthropicAPIKey  string
	AnthropicBaseURL string

	OllamaURL string

	// LocalEmbeddingModel is the model served by the local provider.
	LocalEmbeddingModel string
}

// HasOpenAI returns true if an OpenAI key is configured.
func (s AISettings) HasOpenAI() bool {
	return s.OpenAIAPIKey != ""
}

// HasAzure returns true if an Azure endpoint and key are configured.
func (s AISettings) HasAzure() bool {
	return s.AzureEndpoint != "" && s.AzureAPIKey != ""
}

// LocalModel returns the local embedding model, defaulting to all-minilm.
func (s AISettings) LocalModel() string {
	if s.LocalEmbeddingModel != "" {
		return s.LocalEmbeddingModel
	}
	return DefaultLocalEmbeddingModel
}

// PipelineSettings holds build and retrieval tuning.
type PipelineSettings struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	ChatModel      string

	// TopK is the number of chunks retrieved per query.
	TopK int

	// BatchSize is the number of chunks sent to the vector index per call.
	BatchSize int

	// Heartbeat is the status refresh interval while a build runs.
	Heartbeat time.Duration

	// RefreshInterval is how often `fabric serve` rebuilds fabrics with
	// remote sources. Zero disables refreshes.
	RefreshInterval time.Duration

	Temperature float64
	MaxTokens   int
}

// DefaultPipelineSettings returns the pipeline defaults.
func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		ChunkSize:      512,
		ChunkOverlap:   64,
		EmbeddingModel: DefaultEmbeddingModel,
		ChatModel:      DefaultChatModel,
		TopK:           5,
		BatchSize:      100,
		Heartbeat:      5 * time.Second,
		Temperature:    0.7,
		MaxTokens:      2000,
	}
}

// VectorBackend selects the VectorIndex implementation.
type VectorBackend string

// Available vector backends.
const (
	VectorBackendMemory VectorBackend = "memory"
	VectorBackendQdrant VectorBackend = "qdrant"
)

// StorageBackend selects the FabricStore implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendSQLite StorageBackend = "sqlite"
)

// AppSettings holds all application settings.
type AppSettings struct {
	AI       AISettings
	Pipeline PipelineSettings

	Vector       VectorBackend
	QdrantAddr   string
	QdrantAPIKey string

	Storage StorageBackend

	ServiceNow ServiceNowSettings
	SharePoint SharePointSettings
}

// ServiceNowSettings are the default connection options for ServiceNow
// sources. Per-fabric source options take precedence.
type ServiceNowSettings struct {
	Instance string
	Username string
	Password string
	Tables   []string
	Limit    int
}

// SharePointSettings are the default app registration for SharePoint sources.
type SharePointSettings struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	SiteID       string
}

// SourceDefaults returns the default options for a source kind, keyed the
// same way as SourceConfig.Options.
func (s AppSettings) SourceDefaults(kind SourceKind) map[string]string {
	switch kind {
	case SourceKindServiceNow:
		opts := map[string]string{
			"instance": s.ServiceNow.Instance,
			"username": s.ServiceNow.Username,
			"password": s.ServiceNow.Password,
			"tables":   strings.Join(s.ServiceNow.Tables, ","),
		}
		if s.ServiceNow.Limit > 0 {
			opts["limit"] = strconv.Itoa(s.ServiceNow.Limit)
		}
		return opts
	case SourceKindSharePoint:
		return map[string]string{
			"tenant_id":     s.SharePoint.TenantID,
			"client_id":     s.SharePoint.ClientID,
			"client_secret": s.SharePoint.ClientSecret,
			"site_id":       s.SharePoint.SiteID,
		}
	default:
		return nil
	}
}

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		AI: AISettings{
			AzureAPIVersion:     "2024-02-01",
			OllamaURL:           "http://localhost:11434",
			LocalEmbeddingModel: DefaultLocalEmbeddingModel,
		},
		Pipeline:   DefaultPipelineSettings(),
		Vector:     VectorBackendMemory,
		QdrantAddr: "localhost:6334",
		Storage:    StorageBackendSQLite,
		ServiceNow: ServiceNowSettings{
			Tables: []string{"incident", "kb_knowledge"},
			Limit:  100,
		},
	}
}
