package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/storage/memory"
	vectormem "github.com/custodia-labs/fabric-cli/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// retrieverFixedEmbedder returns the same query vector for every text.
type retrieverFixedEmbedder struct {
	*chainMockProvider
	vec []float32
}

func (m *retrieverFixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return m.vec, nil
}

type retrieverFixture struct {
	store     *memory.FabricStore
	index     *vectormem.Index
	retriever *Retriever
}

func newRetrieverFixture(t *testing.T, dims int) *retrieverFixture {
	t.Helper()
	query := make([]float32, dims)
	query[0] = 1
	embedder := &retrieverFixedEmbedder{chainMockProvider: newChainMock("text-embedding-3-small", dims), vec: query}

	fx := &retrieverFixture{
		store: memory.NewFabricStore(),
		index: vectormem.NewIndex(),
	}
	fx.retriever = NewRetriever(fx.store, &chainMockResolver{providers: []driven.EmbeddingService{embedder}}, fx.index, 2)
	return fx
}

func (fx *retrieverFixture) readyFabric(t *testing.T, id string) *domain.Fabric {
	t.Helper()
	f := &domain.Fabric{
		ID:             id,
		Name:           id,
		Status:         domain.FabricStatusReady,
		ChunkSize:      10,
		EmbeddingModel: "text-embedding-3-small",
	}
	require.NoError(t, fx.store.Create(context.Background(), f))
	return f
}

func (fx *retrieverFixture) seed(t *testing.T, f *domain.Fabric) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, fx.index.CreateCollection(ctx, f.ID, f.Collection(), 3))
	require.NoError(t, fx.index.Add(ctx, f.Collection(), driven.AddRequest{
		IDs:   []string{"INC001-chunk-0", "KB002-chunk-1", "INC001-chunk-2"},
		Texts: []string{"printer offline", "vpn token reset", "printer driver reinstall"},
		Vectors: [][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		},
		Metadatas: []map[string]any{
			{"number": "INC001", "short_description": "Printer offline", "source": "servicenow"},
			{"number": "KB002", "source": "servicenow"},
			{"number": "INC001", "short_description": "Printer offline", "source": "servicenow"},
		},
	}))
}

func TestRetriever_Retrieve(t *testing.T) {
	fx := newRetrieverFixture(t, 3)
	f := fx.readyFabric(t, "f1")
	fx.seed(t, f)

	result, err := fx.retriever.Retrieve(context.Background(), "f1", "printer", 3)
	require.NoError(t, err)

	require.Len(t, result.Context, 3)
	assert.Equal(t, "INC001-chunk-0", result.Context[0].ID)
	assert.Equal(t, "INC001-chunk-2", result.Context[1].ID)
	assert.Equal(t, "KB002-chunk-1", result.Context[2].ID)
	assert.InDelta(t, 1.0, result.Context[0].Similarity, 1e-6)

	require.Len(t, result.Citations, 2)
	assert.Equal(t, "INC001", result.Citations[0].ID)
	assert.Equal(t, "Printer offline", result.Citations[0].Title)
	assert.Equal(t, "printer offline", result.Citations[0].Snippet)
	assert.Equal(t, "KB002", result.Citations[1].ID)
}

func TestRetriever_DefaultTopK(t *testing.T) {
	fx := newRetrieverFixture(t, 3)
	f := fx.readyFabric(t, "f1")
	fx.seed(t, f)

	result, err := fx.retriever.Retrieve(context.Background(), "f1", "printer", 0)
	require.NoError(t, err)
	assert.Len(t, result.Context, 2)
	assert.Len(t, result.Citations, 1)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	fx := newRetrieverFixture(t, 3)
	fx.readyFabric(t, "f1")

	_, err := fx.retriever.Retrieve(context.Background(), "f1", "   ", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetriever_FabricNotFound(t *testing.T) {
	fx := newRetrieverFixture(t, 3)

	_, err := fx.retriever.Retrieve(context.Background(), "missing", "printer", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetriever_NotReady(t *testing.T) {
	for _, status := range []domain.FabricStatus{
		domain.FabricStatusDraft,
		domain.FabricStatusVectorizing,
		domain.FabricStatusError,
	} {
		t.Run(string(status), func(t *testing.T) {
			fx := newRetrieverFixture(t, 3)
			f := fx.readyFabric(t, "f1")
			_, err := fx.store.Update(context.Background(), f.ID, func(f *domain.Fabric) error {
				f.Status = status
				return nil
			})
			require.NoError(t, err)

			_, err = fx.retriever.Retrieve(context.Background(), "f1", "printer", 3)
			assert.ErrorIs(t, err, domain.ErrNotReady)
		})
	}
}

func TestRetriever_MissingCollection(t *testing.T) {
	fx := newRetrieverFixture(t, 3)
	fx.readyFabric(t, "f1")

	_, err := fx.retriever.Retrieve(context.Background(), "f1", "printer", 3)
	assert.ErrorIs(t, err, domain.ErrIndexInconsistency)
	assert.Contains(t, err.Error(), "rebuild")
}

func TestRetriever_DimensionMismatch(t *testing.T) {
	fx := newRetrieverFixture(t, 5)
	f := fx.readyFabric(t, "f1")
	fx.seed(t, f)

	_, err := fx.retriever.Retrieve(context.Background(), "f1", "printer", 3)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestRetriever_EmptyCollection(t *testing.T) {
	fx := newRetrieverFixture(t, 3)
	f := fx.readyFabric(t, "f1")
	require.NoError(t, fx.index.CreateCollection(context.Background(), f.ID, f.Collection(), 3))

	_, err := fx.retriever.Retrieve(context.Background(), "f1", "printer", 3)
	assert.ErrorIs(t, err, domain.ErrNoRelevantContent)
}

func TestRetriever_ZeroVectorsNeverMatch(t *testing.T) {
	fx := newRetrieverFixture(t, 3)
	f := fx.readyFabric(t, "f1")
	ctx := context.Background()
	require.NoError(t, fx.index.CreateCollection(ctx, f.ID, f.Collection(), 3))
	require.NoError(t, fx.index.Add(ctx, f.Collection(), driven.AddRequest{
		IDs:       []string{"degraded"},
		Texts:     []string{"lost chunk"},
		Vectors:   [][]float32{{0, 0, 0}},
		Metadatas: []map[string]any{{}},
	}))

	_, err := fx.retriever.Retrieve(ctx, "f1", "printer", 3)
	assert.ErrorIs(t, err, domain.ErrNoRelevantContent)
}

func TestRetriever_ResolveError(t *testing.T) {
	fx := newRetrieverFixture(t, 3)
	fx.readyFabric(t, "f1")
	fx.retriever.resolver = &chainMockResolver{err: domain.ErrConfiguration}

	_, err := fx.retriever.Retrieve(context.Background(), "f1", "printer", 3)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
