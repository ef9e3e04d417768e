package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyOpenAIAPIKey     = "embedding.openai_api_key"
	keyOpenAIBaseURL    = "embedding.openai_base_url"
	keyAzureEndpoint    = "embedding.azure_endpoint"
	keyAzureAPIKey      = "embedding.azure_api_key"
	keyAzureAPIVersion  = "embedding.azure_api_version"
	keyOllamaURL        = "embedding.ollama_url"
	keyLocalModel       = "embedding.local_model"
	keyAnthropicAPIKey  = "llm.anthropic_api_key"
	keyAnthropicBaseURL = "llm.anthropic_base_url"

	keyChunkSize      = "pipeline.chunk_size"
	keyChunkOverlap   = "pipeline.chunk_overlap"
	keyEmbeddingModel = "pipeline.embedding_model"
	keyChatModel      = "pipeline.chat_model"
	keyTopK           = "pipeline.top_k"
	keyBatchSize      = "pipeline.batch_size"
	keyHeartbeat      = "pipeline.heartbeat"
	keyRefresh        = "pipeline.refresh_interval"
	keyTemperature    = "pipeline.temperature"
	keyMaxTokens      = "pipeline.max_tokens"

	keyVectorBackend = "vector.backend"
	keyQdrantAddr    = "vector.qdrant_addr"
	keyQdrantAPIKey  = "vector.qdrant_api_key"
	keyStorage       = "storage.backend"

	keySNInstance = "servicenow.instance"
	keySNUsername = "servicenow.username"
	keySNPassword = "servicenow.password"
	keySNTables   = "servicenow.tables"
	keySNLimit    = "servicenow.limit"

	keySPTenantID     = "sharepoint.tenant_id"
	keySPClientID     = "sharepoint.client_id"
	keySPClientSecret = "sharepoint.client_secret"
	keySPSiteID       = "sharepoint.site_id"
)

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindDuration
	kindList
	kindVector
	kindStorage
)

var settingKeys = map[string]keyKind{
	keyOpenAIAPIKey:     kindString,
	keyOpenAIBaseURL:    kindString,
	keyAzureEndpoint:    kindString,
	keyAzureAPIKey:      kindString,
	keyAzureAPIVersion:  kindString,
	keyOllamaURL:        kindString,
	keyLocalModel:       kindString,
	keyAnthropicAPIKey:  kindString,
	keyAnthropicBaseURL: kindString,
	keyChunkSize:        kindInt,
	keyChunkOverlap:     kindInt,
	keyEmbeddingModel:   kindString,
	keyChatModel:        kindString,
	keyTopK:             kindInt,
	keyBatchSize:        kindInt,
	keyHeartbeat:        kindDuration,
	keyRefresh:          kindDuration,
	keyTemperature:      kindFloat,
	keyMaxTokens:        kindInt,
	keyVectorBackend:    kindVector,
	keyQdrantAddr:       kindString,
	keyQdrantAPIKey:     kindString,
	keyStorage:          kindStorage,
	keySNInstance:       kindString,
	keySNUsername:       kindString,
	keySNPassword:       kindString,
	keySNTables:         kindList,
	keySNLimit:          kindInt,
	keySPTenantID:       kindString,
	keySPClientID:       kindString,
	keySPClientSecret:   kindString,
	keySPSiteID:         kindString,
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		AI: domain.AISettings{
			OpenAIAPIKey:        s.configStore.GetString(keyOpenAIAPIKey),
			OpenAIBaseURL:       s.configStore.GetString(keyOpenAIBaseURL),
			AzureEndpoint:       s.configStore.GetString(keyAzureEndpoint),
			AzureAPIKey:         s.configStore.GetString(keyAzureAPIKey),
			AzureAPIVersion:     s.getString(keyAzureAPIVersion, d.AI.AzureAPIVersion),
			AnthropicAPIKey:     s.configStore.GetString(keyAnthropicAPIKey),
			AnthropicBaseURL:    s.configStore.GetString(keyAnthropicBaseURL),
			OllamaURL:           s.getString(keyOllamaURL, d.AI.OllamaURL),
			LocalEmbeddingModel: s.getString(keyLocalModel, d.AI.LocalEmbeddingModel),
		},
		Pipeline: domain.PipelineSettings{
			ChunkSize:       s.getInt(keyChunkSize, d.Pipeline.ChunkSize),
			ChunkOverlap:    s.getInt(keyChunkOverlap, d.Pipeline.ChunkOverlap),
			EmbeddingModel:  s.getString(keyEmbeddingModel, d.Pipeline.EmbeddingModel),
			ChatModel:       s.getString(keyChatModel, d.Pipeline.ChatModel),
			TopK:            s.getInt(keyTopK, d.Pipeline.TopK),
			BatchSize:       s.getInt(keyBatchSize, d.Pipeline.BatchSize),
			Heartbeat:       s.getDuration(keyHeartbeat, d.Pipeline.Heartbeat),
			RefreshInterval: s.getDuration(keyRefresh, d.Pipeline.RefreshInterval),
			Temperature:     s.getFloat(keyTemperature, d.Pipeline.Temperature),
			MaxTokens:       s.getInt(keyMaxTokens, d.Pipeline.MaxTokens),
		},
		Vector:       domain.VectorBackend(s.getString(keyVectorBackend, string(d.Vector))),
		QdrantAddr:   s.getString(keyQdrantAddr, d.QdrantAddr),
		QdrantAPIKey: s.getString(keyQdrantAPIKey, d.QdrantAPIKey),
		Storage:      domain.StorageBackend(s.getString(keyStorage, string(d.Storage))),
		ServiceNow: domain.ServiceNowSettings{
			Instance: s.configStore.GetString(keySNInstance),
			Username: s.configStore.GetString(keySNUsername),
			Password: s.configStore.GetString(keySNPassword),
			Tables:   s.getList(keySNTables, d.ServiceNow.Tables),
			Limit:    s.getInt(keySNLimit, d.ServiceNow.Limit),
		},
		SharePoint: domain.SharePointSettings{
			TenantID:     s.configStore.GetString(keySPTenantID),
			ClientID:     s.configStore.GetString(keySPClientID),
			ClientSecret: s.configStore.GetString(keySPClientSecret),
			SiteID:       s.configStore.GetString(keySPSiteID),
		},
	}

	if err := domain.ValidateChunking(settings.Pipeline.ChunkSize, settings.Pipeline.ChunkOverlap); err != nil {
		return nil, fmt.Errorf("invalid pipeline settings: %w", err)
	}
	return settings, nil
}

// Set parses value according to key and persists it.
func (s *SettingsService) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	kind, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	value = strings.TrimSpace(value)

	var parsed any
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		parsed = n
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, key)
		}
		parsed = f
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s must be a positive duration such as 5s", domain.ErrInvalidInput, key)
		}
		parsed = value
	case kindList:
		parsed = splitList(value)
	case kindVector:
		b := domain.VectorBackend(value)
		if b != domain.VectorBackendMemory && b != domain.VectorBackendQdrant {
			return fmt.Errorf("%w: %s must be memory or qdrant", domain.ErrInvalidInput, key)
		}
		parsed = value
	case kindStorage:
		b := domain.StorageBackend(value)
		if b != domain.StorageBackendMemory && b != domain.StorageBackendSQLite {
			return fmt.Errorf("%w: %s must be memory or sqlite", domain.ErrInvalidInput, key)
		}
		parsed = value
	default:
		parsed = value
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return s.configStore.Save()
}

// Keys returns every recognised setting key, sorted.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetDefaults returns the default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if d := s.configStore.GetDuration(key); d > 0 {
		return d
	}
	return defaultVal
}

func (s *SettingsService) getList(key string, defaultVal []string) []string {
	if vals := s.configStore.GetStringSlice(key); len(vals) > 0 {
		return vals
	}
	if val := s.configStore.GetString(key); val != "" {
		return splitList(val)
	}
	return defaultVal
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
