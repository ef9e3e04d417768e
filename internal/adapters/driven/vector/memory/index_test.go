package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

func seed(t *testing.T, x *Index) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, x.CreateCollection(ctx, "f1", "fabric-f1", 3))
	require.NoError(t, x.Add(ctx, "fabric-f1", driven.AddRequest{
		IDs:     []string{"INC1-chunk-0", "INC2-chunk-1", "KB1-chunk-2"},
		Texts:   []string{"printer offline", "vpn drops", "printer driver reinstall"},
		Vectors: [][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}},
		Metadatas: []map[string]any{
			{"number": "INC1"}, {"number": "INC2"}, {"number": "KB1"},
		},
	}))
}

func TestIndex_QueryRanksBySimilarity(t *testing.T) {
	x := NewIndex()
	seed(t, x)

	got, err := x.Query(context.Background(), "fabric-f1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "INC1-chunk-0", got[0].ID)
	assert.Equal(t, "KB1-chunk-2", got[1].ID)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "INC1", got[0].Metadata["number"])
}

func TestIndex_GetCollection(t *testing.T) {
	x := NewIndex()
	seed(t, x)

	info, err := x.GetCollection(context.Background(), "fabric-f1")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimension)
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, "f1", info.FabricID)

	_, err = x.GetCollection(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndex_CreateCollectionResets(t *testing.T) {
	x := NewIndex()
	seed(t, x)
	ctx := context.Background()

	require.NoError(t, x.CreateCollection(ctx, "f1", "fabric-f1", 4))
	info, err := x.GetCollection(ctx, "fabric-f1")
	require.NoError(t, err)
	assert.Equal(t, 4, info.Dimension)
	assert.Zero(t, info.Count)

	assert.ErrorIs(t, x.CreateCollection(ctx, "f1", "bad", 0), domain.ErrConfiguration)
}

func TestIndex_AddDimensionMismatch(t *testing.T) {
	x := NewIndex()
	seed(t, x)

	err := x.Add(context.Background(), "fabric-f1", driven.AddRequest{
		IDs:       []string{"x"},
		Texts:     []string{"x"},
		Vectors:   [][]float32{{1, 2}},
		Metadatas: []map[string]any{{}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	err = x.Add(context.Background(), "missing", driven.AddRequest{})
	assert.ErrorIs(t, err, domain.ErrIndexInconsistency)
}

func TestIndex_AddUpserts(t *testing.T) {
	x := NewIndex()
	seed(t, x)
	ctx := context.Background()

	require.NoError(t, x.Add(ctx, "fabric-f1", driven.AddRequest{
		IDs:       []string{"INC1-chunk-0"},
		Texts:     []string{"printer back online"},
		Vectors:   [][]float32{{1, 0, 0}},
		Metadatas: []map[string]any{{"number": "INC1"}},
	}))
	info, err := x.GetCollection(ctx, "fabric-f1")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Count)

	got, err := x.Query(ctx, "fabric-f1", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "printer back online", got[0].Text)
}

func TestIndex_ZeroVectorsNeverMatch(t *testing.T) {
	x := NewIndex()
	ctx := context.Background()
	require.NoError(t, x.CreateCollection(ctx, "f1", "c", 2))
	require.NoError(t, x.Add(ctx, "c", driven.AddRequest{
		IDs:       []string{"a"},
		Texts:     []string{"degraded"},
		Vectors:   [][]float32{{0, 0}},
		Metadatas: []map[string]any{nil},
	}))

	got, err := x.Query(ctx, "c", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndex_DeleteCollection(t *testing.T) {
	x := NewIndex()
	seed(t, x)
	ctx := context.Background()

	require.NoError(t, x.DeleteCollection(ctx, "fabric-f1"))
	assert.ErrorIs(t, x.DeleteCollection(ctx, "fabric-f1"), domain.ErrNotFound)
	_, err := x.Query(ctx, "fabric-f1", []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
