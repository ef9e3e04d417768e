// Package qdrant provides a VectorIndex backed by a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/vector"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultAddr is the default Qdrant gRPC address.
const DefaultAddr = "localhost:6334"

// Reserved payload keys. Chunk metadata is stored alongside them.
const (
	payloadText    = "_text"
	payloadChunkID = "_chunk_id"
)

// pointNamespace derives deterministic point UUIDs from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c2a7e-3b8d-5e4f-9a0b-1c2d3e4f5a6b")

// Config holds connection settings.
type Config struct {
	// Addr is host:port of the gRPC endpoint (default: localhost:6334).
	Addr string

	// APIKey is sent in the api-key header when set.
	APIKey string

	// TLS enables transport security.
	TLS bool

	// Timeout bounds each call (default: 30s).
	Timeout time.Duration
}

// Index stores fabric collections in Qdrant using cosine distance.
type Index struct {
	conn        *grpc.ClientConn
	collections qc.CollectionsClient
	points      qc.PointsClient
	timeout     time.Duration
}

// New connects to Qdrant. The connection is established lazily.
func New(cfg Config) (*Index, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	creds := insecure.NewCredentials()
	if cfg.TLS {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant %s: %w", domain.ErrConfiguration, cfg.Addr, err)
	}
	return NewWithConn(conn, cfg.Timeout), nil
}

// NewWithConn wraps an existing connection. Close closes conn.
func NewWithConn(conn *grpc.ClientConn, timeout time.Duration) *Index {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Index{
		conn:        conn,
		collections: qc.NewCollectionsClient(conn),
		points:      qc.NewPointsClient(conn),
		timeout:     timeout,
	}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption,
	) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// CreateCollection recreates the collection with the given dimension.
// Existing points are always dropped so rebuilds start clean.
func (x *Index) CreateCollection(ctx context.Context, fabricID, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: collection dimension must be positive, got %d", domain.ErrConfiguration, dimension)
	}
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	info, err := x.GetCollection(ctx, name)
	switch {
	case err == nil:
		if info.Dimension != dimension {
			logger.Info("collection %s dimension changed %d -> %d, recreating", name, info.Dimension, dimension)
		}
		if _, err := x.collections.Delete(ctx, &qc.DeleteCollection{CollectionName: name}); err != nil {
			return fmt.Errorf("%w: delete collection %s: %w", domain.ErrIndexInconsistency, name, mapError(err))
		}
	case !isNotFound(err):
		return err
	}

	_, err = x.collections.Create(ctx, &qc.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qc.VectorsConfig{Config: &qc.VectorsConfig_Params{
			Params: &qc.VectorParams{Size: uint64(dimension), Distance: qc.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, mapError(err))
	}
	logger.Debug("created qdrant collection %s for fabric %s (%d dims)", name, fabricID, dimension)
	return nil
}

// GetCollection returns collection details. FabricID is not stored at
// collection level in Qdrant and is left empty.
func (x *Index) GetCollection(ctx context.Context, name string) (*driven.CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	resp, err := x.collections.Get(ctx, &qc.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, mapError(err))
	}
	info := resp.GetResult()
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return &driven.CollectionInfo{
		Name:      name,
		Dimension: int(size),
		Count:     int(info.GetPointsCount()),
	}, nil
}

// Add upserts a batch of chunks and waits for it to be applied.
func (x *Index) Add(ctx context.Context, name string, req driven.AddRequest) error {
	if req.Len() == 0 {
		return nil
	}
	info, err := x.GetCollection(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: collection %s does not exist", domain.ErrIndexInconsistency, name)
		}
		return err
	}
	if err := vector.ValidateBatch(req, info.Dimension); err != nil {
		return err
	}

	points := make([]*qc.PointStruct, 0, req.Len())
	for i, id := range req.IDs {
		payload := toPayload(req.Metadatas[i])
		payload[payloadText] = stringValue(req.Texts[i])
		payload[payloadChunkID] = stringValue(id)
		points = append(points, &qc.PointStruct{
			Id: PointID(id),
			Vectors: &qc.Vectors{VectorsOptions: &qc.Vectors_Vector{
				Vector: &qc.Vector{Data: req.Vectors[i]},
			}},
			Payload: payload,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	wait := true
	if _, err := x.points.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), name, mapError(err))
	}
	return nil
}

// Query returns the k closest chunks.
func (x *Index) Query(ctx context.Context, name string, vec []float32, k int) ([]domain.RetrievedChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	resp, err := x.points.Search(ctx, &qc.SearchPoints{
		CollectionName: name,
		Vector:         vec,
		Limit:          uint64(max(k, 1)),
		WithPayload: &qc.WithPayloadSelector{SelectorOptions: &qc.WithPayloadSelector_Enable{
			Enable: true,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, mapError(err))
	}

	results := make([]domain.RetrievedChunk, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		payload := p.GetPayload()
		results = append(results, domain.RetrievedChunk{
			ID:         payload[payloadChunkID].GetStringValue(),
			Text:       payload[payloadText].GetStringValue(),
			Metadata:   fromPayload(payload),
			Similarity: float64(p.GetScore()),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	return results, nil
}

// DeleteCollection drops a collection.
func (x *Index) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if _, err := x.collections.Get(ctx, &qc.GetCollectionInfoRequest{CollectionName: name}); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, mapError(err))
	}
	if _, err := x.collections.Delete(ctx, &qc.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, mapError(err))
	}
	return nil
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	return x.conn.Close()
}

// PointID maps a chunk ID onto a deterministic UUID point ID.
func PointID(chunkID string) *qc.PointId {
	return &qc.PointId{PointIdOptions: &qc.PointId_Uuid{
		Uuid: uuid.NewSHA1(pointNamespace, []byte(chunkID)).String(),
	}}
}

func stringValue(s string) *qc.Value {
	return &qc.Value{Kind: &qc.Value_StringValue{StringValue: s}}
}

// toPayload converts chunk metadata into Qdrant values. Unsupported types
// are stored as their string form.
func toPayload(meta map[string]any) map[string]*qc.Value {
	out := make(map[string]*qc.Value, len(meta)+2)
	for k, v := range meta {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			out[k] = stringValue(t)
		case bool:
			out[k] = &qc.Value{Kind: &qc.Value_BoolValue{BoolValue: t}}
		case int:
			out[k] = &qc.Value{Kind: &qc.Value_IntegerValue{IntegerValue: int64(t)}}
		case int64:
			out[k] = &qc.Value{Kind: &qc.Value_IntegerValue{IntegerValue: t}}
		case float32:
			out[k] = &qc.Value{Kind: &qc.Value_DoubleValue{DoubleValue: float64(t)}}
		case float64:
			out[k] = &qc.Value{Kind: &qc.Value_DoubleValue{DoubleValue: t}}
		default:
			out[k] = stringValue(fmt.Sprint(t))
		}
	}
	return out
}

// fromPayload converts stored values back to metadata, dropping reserved keys.
func fromPayload(payload map[string]*qc.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case payloadText, payloadChunkID:
			continue
		}
		switch kind := v.GetKind().(type) {
		case *qc.Value_StringValue:
			out[k] = kind.StringValue
		case *qc.Value_BoolValue:
			out[k] = kind.BoolValue
		case *qc.Value_IntegerValue:
			out[k] = int(kind.IntegerValue)
		case *qc.Value_DoubleValue:
			out[k] = kind.DoubleValue
		}
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || status.Code(err) == codes.NotFound
}

// mapError attaches domain sentinels to gRPC status errors.
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w", domain.ErrIndexInconsistency, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: qdrant unreachable: %w", domain.ErrIndexInconsistency, err)
	default:
		return err
	}
}
