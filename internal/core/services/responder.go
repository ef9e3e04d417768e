package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/telemetry"
)

// Ensure Responder implements the interface.
var (
	_ driving.Responder       = (*Responder)(nil)
	_ driven.PromptStoreAware = (*Responder)(nil)
)

// NoRelevantContentAnswer is returned when retrieval finds nothing.
const NoRelevantContentAnswer = "No relevant content found in this fabric for your question."

// Responder answers questions grounded in a fabric's retrieved context.
type Responder struct {
	store     driven.FabricStore
	retriever driving.Retriever
	router    driven.ChatRouter
	settings  domain.PipelineSettings
	prompts   driven.PromptStore
}

// NewResponder creates a responder.
func NewResponder(
	store driven.FabricStore,
	retriever driving.Retriever,
	router driven.ChatRouter,
	settings domain.PipelineSettings,
) *Responder {
	defaults := domain.DefaultPipelineSettings()
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = defaults.MaxTokens
	}
	if settings.Temperature <= 0 {
		settings.Temperature = defaults.Temperature
	}
	if settings.TopK <= 0 {
		settings.TopK = defaults.TopK
	}
	if settings.ChatModel == "" {
		settings.ChatModel = defaults.ChatModel
	}
	return &Responder{store: store, retriever: retriever, router: router, settings: settings}
}

// SetPromptStore enables a user-editable system prompt.
func (r *Responder) SetPromptStore(store driven.PromptStore) {
	r.prompts = store
}

func (r *Responder) systemPrompt() string {
	if r.prompts == nil {
		return domain.DefaultAnswerSystemPrompt
	}
	p, err := r.prompts.Load(driven.PromptAnswerSystem)
	if err != nil || strings.TrimSpace(p) == "" {
		if err != nil {
			logger.Warn("using default system prompt: %v", err)
		}
		return domain.DefaultAnswerSystemPrompt
	}
	return p
}

// Answer retrieves context for query and asks the fabric's chat model.
// When nothing relevant is found it returns a fixed answer without calling
// the model.
func (r *Responder) Answer(
	ctx context.Context,
	fabricID, query string,
	history []domain.ConversationTurn,
) (*domain.Answer, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fabric.answer",
		trace.WithAttributes(attribute.String("fabric.id", fabricID)))
	defer span.End()

	result, err := r.retriever.Retrieve(ctx, fabricID, query, r.settings.TopK)
	if errors.Is(err, domain.ErrNoRelevantContent) {
		return &domain.Answer{
			Text:      NoRelevantContentAnswer,
			Citations: []domain.SourceCitation{},
		}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	fabric, err := r.store.Get(ctx, fabricID)
	if err != nil {
		return nil, err
	}
	model := fabric.ChatModel
	if model == "" {
		model = r.settings.ChatModel
	}

	provider, err := r.router.ProviderFor(model)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("chat.model", provider.ModelName()))

	messages := make([]driven.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		if turn.Role != "user" && turn.Role != "assistant" {
			continue
		}
		messages = append(messages, driven.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, driven.ChatMessage{
		Role:    "user",
		Content: BuildUserPrompt(result.Context, query),
	})

	logger.Debug("asking %s with %d context chunks", provider.ModelName(), len(result.Context))
	text, err := provider.Complete(ctx, r.systemPrompt(), messages, driven.ChatOptions{
		MaxTokens:   r.settings.MaxTokens,
		Temperature: r.settings.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s: %w", provider.ModelName(), err)
	}

	return &domain.Answer{
		Text:        text,
		Citations:   result.Citations,
		ContextUsed: len(result.Context),
		Model:       provider.ModelName(),
	}, nil
}

// BuildUserPrompt formats retrieved chunks and the question into the user
// message sent to the chat model.
func BuildUserPrompt(chunks []domain.RetrievedChunk, query string) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("[Source: %s]\n%s", domain.MetaString(c.Metadata, domain.MetaSource), c.Text))
	}

	var b strings.Builder
	b.WriteString("Based on the following knowledge base context, answer the user's question.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n\nUser Question: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
