package ai

import (
	"context"
	"fmt"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// Ensure unconfiguredEmbedding implements the interface.
var _ driven.EmbeddingService = (*unconfiguredEmbedding)(nil)

// unconfiguredEmbedding holds a hosted model's place at the head of a
// chain when its credentials are missing. It keeps the chain's dimension
// tied to the model and fails every call as transient so the chain moves
// on to the next provider.
type unconfiguredEmbedding struct {
	provider string
	model    string
	missing  string
}

func newUnconfiguredEmbedding(provider, model, missing string) *unconfiguredEmbedding {
	return &unconfiguredEmbedding{provider: provider, model: model, missing: missing}
}

func (u *unconfiguredEmbedding) err() error {
	return fmt.Errorf("%w: %s has no %s", driven.ErrTransient, u.provider, u.missing)
}

func (u *unconfiguredEmbedding) Embed(context.Context, string) ([]float32, error) {
	return nil, u.err()
}

func (u *unconfiguredEmbedding) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, u.err()
}

func (u *unconfiguredEmbedding) Dimensions() int {
	return domain.HostedEmbeddingDimensions(u.model)
}

func (u *unconfiguredEmbedding) ModelName() string          { return u.model }
func (u *unconfiguredEmbedding) Ping(context.Context) error { return u.err() }
func (u *unconfiguredEmbedding) Close() error               { return nil }
