package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/telemetry"
)

// Ensure Retriever implements the interface.
var _ driving.Retriever = (*Retriever)(nil)

// Retriever runs similarity search against a ready fabric.
type Retriever struct {
	store    driven.FabricStore
	resolver driven.EmbeddingResolver
	index    driven.VectorIndex
	topK     int
}

// NewRetriever creates a retriever. topK <= 0 uses the default of 5.
func NewRetriever(
	store driven.FabricStore,
	resolver driven.EmbeddingResolver,
	index driven.VectorIndex,
	topK int,
) *Retriever {
	if topK <= 0 {
		topK = domain.DefaultPipelineSettings().TopK
	}
	return &Retriever{store: store, resolver: resolver, index: index, topK: topK}
}

// Retrieve embeds query with the fabric's model and returns the k closest
// chunks plus one citation per logical document.
func (r *Retriever) Retrieve(ctx context.Context, fabricID, query string, k int) (*driving.RetrievalResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fabric.retrieve",
		trace.WithAttributes(attribute.String("fabric.id", fabricID)))
	defer span.End()

	result, err := r.retrieve(ctx, fabricID, query, k)
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrNoRelevantContent):
		outcome = "empty"
	case err != nil:
		outcome = "error"
		span.RecordError(err)
	}
	telemetry.Default().Queries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return result, err
}

func (r *Retriever) retrieve(ctx context.Context, fabricID, query string, k int) (*driving.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if k <= 0 {
		k = r.topK
	}

	fabric, err := r.store.Get(ctx, fabricID)
	if err != nil {
		return nil, err
	}
	if fabric.Status != domain.FabricStatusReady {
		return nil, fmt.Errorf("%w: fabric %s is %s", domain.ErrNotReady, fabricID, fabric.Status)
	}

	providers, err := r.resolver.Resolve(fabric.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("resolve embedding model %q: %w", fabric.EmbeddingModel, err)
	}
	chain, err := NewEmbeddingChain(providers)
	if err != nil {
		return nil, err
	}

	collection := fabric.Collection()
	info, err := r.index.GetCollection(ctx, collection)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: collection %s is missing, rebuild the fabric",
				domain.ErrIndexInconsistency, collection)
		}
		return nil, fmt.Errorf("get collection %s: %w", collection, err)
	}
	if info.Dimension != chain.Dimensions() {
		return nil, fmt.Errorf("%w: %w: model %s produces %d dimensions but collection %s has %d",
			domain.ErrConfiguration, domain.ErrDimensionMismatch,
			chain.ModelName(), chain.Dimensions(), collection, info.Dimension)
	}

	vector, err := chain.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := r.index.Query(ctx, collection, vector, k)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	if len(chunks) == 0 {
		return nil, domain.ErrNoRelevantContent
	}
	logger.Debug("retrieved %d chunks for fabric %s", len(chunks), fabricID)

	return &driving.RetrievalResult{
		Context:   chunks,
		Citations: ExtractCitations(chunks),
	}, nil
}
