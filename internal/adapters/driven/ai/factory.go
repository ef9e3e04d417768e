// Package ai builds embedding and chat providers from settings and routes
// model names to them.
package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ollamaembed "github.com/custodia-labs/fabric-cli/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/fabric-cli/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/fabric-cli/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/fabric-cli/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/fabric-cli/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Ensure Factory implements the routing ports.
var (
	_ driven.EmbeddingResolver = (*Factory)(nil)
	_ driven.ChatRouter        = (*Factory)(nil)
)

// Factory creates providers on demand and caches them so circuit breaker
// state survives across builds and queries.
type Factory struct {
	settings domain.AISettings
	guardCfg GuardConfig

	mu        sync.Mutex
	embedders map[string]driven.EmbeddingService
	chats     map[string]driven.ChatProvider
}

// NewFactory creates a provider factory.
func NewFactory(settings domain.AISettings, guardCfg GuardConfig) *Factory {
	return &Factory{
		settings:  settings,
		guardCfg:  guardCfg,
		embedders: make(map[string]driven.EmbeddingService),
		chats:     make(map[string]driven.ChatProvider),
	}
}

// Resolve returns embedding providers for model in fallback order:
//
//	azure deployments:  azure, openai text-embedding-3-large (if keyed), local
//	text-embedding/gpt: openai, local
//	anything else:      local
//
// A hosted head provider that is not configured stays in the chain as a
// placeholder failing with driven.ErrTransient, so the chain dimension is
// fixed by the model and never by which credentials happen to be set.
// Unconfigured fallbacks are skipped. The local provider is always last.
func (f *Factory) Resolve(model string) ([]driven.EmbeddingService, error) {
	if strings.TrimSpace(model) == "" {
		model = domain.DefaultEmbeddingModel
	}

	var chain []driven.EmbeddingService
	switch domain.RouteEmbeddingModel(model) {
	case domain.EmbeddingRouteAzure:
		if f.settings.HasAzure() {
			svc, err := f.embedder("azure", model, f.azureEmbedding)
			if err != nil {
				return nil, err
			}
			chain = append(chain, svc)
		} else {
			logger.Warn("azure embedding model %q requested but azure is not configured", model)
			chain = append(chain, newUnconfiguredEmbedding("azure", model, "endpoint or API key"))
		}
		if f.settings.HasOpenAI() {
			svc, err := f.embedder("openai", domain.DefaultFallbackEmbeddingModel, f.openAIEmbedding)
			if err != nil {
				return nil, err
			}
			chain = append(chain, svc)
		}

	case domain.EmbeddingRouteHosted:
		if f.settings.HasOpenAI() {
			svc, err := f.embedder("openai", model, f.openAIEmbedding)
			if err != nil {
				return nil, err
			}
			chain = append(chain, svc)
		} else {
			logger.Warn("openai embedding model %q requested but no API key is configured", model)
			chain = append(chain, newUnconfiguredEmbedding("openai", model, "API key"))
		}
	}

	localModel := f.settings.LocalModel()
	if domain.RouteEmbeddingModel(model) == domain.EmbeddingRouteLocal && model != localModel {
		if _, known := domain.EmbeddingDimensions()[model]; known {
			localModel = model
		} else {
			logger.Warn("unknown embedding model %q, using local model %q", model, localModel)
		}
	}
	local, err := f.embedder("ollama", localModel, f.localEmbedding)
	if err != nil {
		return nil, err
	}
	return append(chain, local), nil
}

// ProviderFor returns the chat provider that serves model.
func (f *Factory) ProviderFor(model string) (driven.ChatProvider, error) {
	provider, name := domain.RouteChatModel(model)
	key := string(provider) + ":" + name

	f.mu.Lock()
	defer f.mu.Unlock()
	if svc, ok := f.chats[key]; ok {
		return svc, nil
	}

	svc, err := f.createChat(provider, name)
	if err != nil {
		return nil, err
	}
	f.chats[key] = svc
	return svc, nil
}

// CheckEmbedding resolves model and pings every provider in its chain.
// It returns one line per provider describing the result.
func (f *Factory) CheckEmbedding(ctx context.Context, model string) ([]string, error) {
	chain, err := f.Resolve(model)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(chain))
	for _, svc := range chain {
		lines = append(lines, describePing(ctx, svc.ModelName(), svc.Dimensions(), svc.Ping))
	}
	return lines, nil
}

// CheckChat pings the provider serving model.
func (f *Factory) CheckChat(ctx context.Context, model string) (string, error) {
	svc, err := f.ProviderFor(model)
	if err != nil {
		return "", err
	}
	return describePing(ctx, svc.ModelName(), 0, svc.Ping), nil
}

func describePing(ctx context.Context, name string, dim int, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	label := name
	if dim > 0 {
		label = fmt.Sprintf("%s (%d dims)", name, dim)
	}
	if err := ping(ctx); err != nil {
		return fmt.Sprintf("%s: unreachable: %v", label, err)
	}
	return label + ": ok"
}

// Close releases every cached provider.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, svc := range f.embedders {
		svc.Close()
		delete(f.embedders, key)
	}
	for key, svc := range f.chats {
		svc.Close()
		delete(f.chats, key)
	}
}

func (f *Factory) embedder(
	provider, model string,
	create func(model string) (driven.EmbeddingService, error),
) (driven.EmbeddingService, error) {
	key := provider + ":" + model

	f.mu.Lock()
	defer f.mu.Unlock()
	if svc, ok := f.embedders[key]; ok {
		return svc, nil
	}
	svc, err := create(model)
	if err != nil {
		return nil, err
	}
	f.embedders[key] = svc
	return svc, nil
}

func (f *Factory) azureEmbedding(model string) (driven.EmbeddingService, error) {
	svc, err := openaiembed.NewAzureEmbeddingService(openaiembed.AzureConfig{
		Endpoint:   f.settings.AzureEndpoint,
		APIKey:     f.settings.AzureAPIKey,
		Deployment: model,
		APIVersion: f.settings.AzureAPIVersion,
	})
	if err != nil {
		return nil, err
	}
	return GuardEmbedding("azure", svc, f.guardCfg), nil
}

func (f *Factory) openAIEmbedding(model string) (driven.EmbeddingService, error) {
	svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:  f.settings.OpenAIAPIKey,
		BaseURL: f.settings.OpenAIBaseURL,
		Model:   model,
	})
	if err != nil {
		return nil, err
	}
	return GuardEmbedding("openai", svc, f.guardCfg), nil
}

func (f *Factory) localEmbedding(model string) (driven.EmbeddingService, error) {
	svc, err := ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL: f.settings.OllamaURL,
		Model:   model,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (f *Factory) createChat(provider domain.AIProvider, model string) (driven.ChatProvider, error) {
	switch provider {
	case domain.AIProviderAzure:
		if !f.settings.HasAzure() {
			return nil, fmt.Errorf("%w: chat model %q needs azure endpoint and key", domain.ErrChatAuth, model)
		}
		svc, err := openaillm.NewChatService(openaillm.Config{
			APIKey:     f.settings.AzureAPIKey,
			BaseURL:    f.settings.AzureEndpoint,
			Model:      model,
			Azure:      true,
			APIVersion: f.settings.AzureAPIVersion,
		})
		if err != nil {
			return nil, err
		}
		return GuardChat("azure-chat", svc, f.guardCfg), nil

	case domain.AIProviderAnthropic:
		if f.settings.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: chat model %q needs an anthropic API key", domain.ErrChatAuth, model)
		}
		svc, err := anthropicllm.NewChatService(anthropicllm.Config{
			APIKey:  f.settings.AnthropicAPIKey,
			BaseURL: f.settings.AnthropicBaseURL,
			Model:   model,
		})
		if err != nil {
			return nil, err
		}
		return GuardChat("anthropic", svc, f.guardCfg), nil

	case domain.AIProviderOllama:
		svc, err := ollamallm.NewChatService(ollamallm.Config{
			BaseURL: f.settings.OllamaURL,
			Model:   model,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		if !f.settings.HasOpenAI() {
			return nil, fmt.Errorf("%w: chat model %q needs an openai API key", domain.ErrChatAuth, model)
		}
		svc, err := openaillm.NewChatService(openaillm.Config{
			APIKey:  f.settings.OpenAIAPIKey,
			BaseURL: f.settings.OpenAIBaseURL,
			Model:   model,
		})
		if err != nil {
			return nil, err
		}
		return GuardChat("openai", svc, f.guardCfg), nil
	}
}
