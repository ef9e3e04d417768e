package qdrant

import (
	"context"
	"net"
	"sort"
	"sync"
	"testing"

	qc "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/vector"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

type fakePoint struct {
	vec     []float32
	payload map[string]*qc.Value
}

type fakeCollection struct {
	dim    uint64
	points map[string]fakePoint
}

// fakeQdrant holds state for the fake collections and points services.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	deletes     int
}

type fakeCollections struct {
	qc.UnimplementedCollectionsServer
	*fakeQdrant
}

type fakePoints struct {
	qc.UnimplementedPointsServer
	*fakeQdrant
}

func (f fakeCollections) Get(_ context.Context, req *qc.GetCollectionInfoRequest) (*qc.GetCollectionInfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Collection `%s` doesn't exist!", req.GetCollectionName())
	}
	count := uint64(len(c.points))
	return &qc.GetCollectionInfoResponse{Result: &qc.CollectionInfo{
		PointsCount: &count,
		Config: &qc.CollectionConfig{Params: &qc.CollectionParams{
			VectorsConfig: &qc.VectorsConfig{Config: &qc.VectorsConfig_Params{
				Params: &qc.VectorParams{Size: c.dim, Distance: qc.Distance_Cosine},
			}},
		}},
	}}, nil
}

func (f fakeCollections) Create(_ context.Context, req *qc.CreateCollection) (*qc.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[req.GetCollectionName()]; ok {
		return nil, status.Error(codes.AlreadyExists, "exists")
	}
	f.collections[req.GetCollectionName()] = &fakeCollection{
		dim:    req.GetVectorsConfig().GetParams().GetSize(),
		points: make(map[string]fakePoint),
	}
	return &qc.CollectionOperationResponse{Result: true}, nil
}

func (f fakeCollections) Delete(_ context.Context, req *qc.DeleteCollection) (*qc.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.collections, req.GetCollectionName())
	return &qc.CollectionOperationResponse{Result: true}, nil
}

func (f fakePoints) Upsert(_ context.Context, req *qc.UpsertPoints) (*qc.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	for _, p := range req.GetPoints() {
		c.points[p.GetId().GetUuid()] = fakePoint{
			vec:     p.GetVectors().GetVector().GetData(),
			payload: p.GetPayload(),
		}
	}
	return &qc.PointsOperationResponse{}, nil
}

func (f fakePoints) Search(_ context.Context, req *qc.SearchPoints) (*qc.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[req.GetCollectionName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	var scored []*qc.ScoredPoint
	for id, p := range c.points {
		scored = append(scored, &qc.ScoredPoint{
			Id:      &qc.PointId{PointIdOptions: &qc.PointId_Uuid{Uuid: id}},
			Payload: p.payload,
			Score:   float32(vector.CosineSimilarity(req.GetVector(), p.vec)),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if uint64(len(scored)) > req.GetLimit() {
		scored = scored[:req.GetLimit()]
	}
	return &qc.SearchResponse{Result: scored}, nil
}

func newTestIndex(t *testing.T) (*Index, *fakeQdrant) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeQdrant{collections: make(map[string]*fakeCollection)}
	qc.RegisterCollectionsServer(srv, fakeCollections{fakeQdrant: fake})
	qc.RegisterPointsServer(srv, fakePoints{fakeQdrant: fake})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	x := NewWithConn(conn, 0)
	t.Cleanup(func() { _ = x.Close() })
	return x, fake
}

func TestIndex_RoundTrip(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.CreateCollection(ctx, "f1", "fabric-f1", 2))
	require.NoError(t, x.Add(ctx, "fabric-f1", driven.AddRequest{
		IDs:     []string{"INC1-chunk-0", "INC2-chunk-1"},
		Texts:   []string{"printer offline", "vpn drops"},
		Vectors: [][]float32{{1, 0}, {0, 1}},
		Metadatas: []map[string]any{
			{"number": "INC1", "chunk_index": 0, "score": 0.5, "active": true},
			{"number": "INC2", "chunk_index": 1},
		},
	}))

	info, err := x.GetCollection(ctx, "fabric-f1")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Dimension)
	assert.Equal(t, 2, info.Count)

	got, err := x.Query(ctx, "fabric-f1", []float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "INC1-chunk-0", got[0].ID)
	assert.Equal(t, "printer offline", got[0].Text)
	assert.Equal(t, "INC1", got[0].Metadata["number"])
	assert.Equal(t, 0, got[0].Metadata["chunk_index"])
	assert.Equal(t, 0.5, got[0].Metadata["score"])
	assert.Equal(t, true, got[0].Metadata["active"])
	assert.NotContains(t, got[0].Metadata, payloadText)
}

func TestIndex_CreateCollectionRecreates(t *testing.T) {
	x, fake := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.CreateCollection(ctx, "f1", "c", 2))
	require.NoError(t, x.CreateCollection(ctx, "f1", "c", 3))
	assert.Equal(t, 1, fake.deletes)

	info, err := x.GetCollection(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimension)
}

func TestIndex_AddDimensionMismatch(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, x.CreateCollection(ctx, "f1", "c", 3))

	err := x.Add(ctx, "c", driven.AddRequest{
		IDs:       []string{"a"},
		Texts:     []string{"a"},
		Vectors:   [][]float32{{1, 2}},
		Metadatas: []map[string]any{{}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_MissingCollection(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := x.GetCollection(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = x.Add(ctx, "missing", driven.AddRequest{
		IDs: []string{"a"}, Texts: []string{"a"}, Vectors: [][]float32{{1}}, Metadatas: []map[string]any{{}},
	})
	assert.ErrorIs(t, err, domain.ErrIndexInconsistency)

	assert.ErrorIs(t, x.DeleteCollection(ctx, "missing"), domain.ErrNotFound)
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("INC1-chunk-0").GetUuid()
	b := PointID("INC1-chunk-0").GetUuid()
	c := PointID("INC1-chunk-1").GetUuid()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}
