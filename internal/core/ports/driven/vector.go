package driven

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// VectorIndex manages one similarity-search collection per fabric.
// Collections use cosine similarity and have a fixed dimension.
type VectorIndex interface {
	// CreateCollection creates the named collection with a fixed dimension.
	// An existing collection is deleted and recreated; a failed delete is
	// returned instead of mixing dimensions.
	CreateCollection(ctx context.Context, fabricID, name string, dimension int) error

	// GetCollection returns collection metadata, or domain.ErrNotFound.
	GetCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// Add stores a batch of chunks. The batch is validated before anything is
	// written: every vector must have the same length as the collection.
	Add(ctx context.Context, name string, req AddRequest) error

	// Query returns the k nearest chunks, highest similarity first.
	Query(ctx context.Context, name string, vector []float32, k int) ([]domain.RetrievedChunk, error)

	// DeleteCollection removes the collection and all its vectors.
	// Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// Close releases resources.
	Close() error
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name      string
	FabricID  string
	Dimension int
	Count     int
}

// AddRequest is a batch of chunks to store. All slices are parallel.
type AddRequest struct {
	IDs       []string
	Texts     []string
	Vectors   [][]float32
	Metadatas []map[string]any
}

// Len returns the number of items in the batch.
func (r AddRequest) Len() int {
	return len(r.IDs)
}
