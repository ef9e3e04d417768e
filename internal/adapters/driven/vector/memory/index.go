// Package memory provides an in-process VectorIndex using exact cosine search.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/vector"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

type entry struct {
	id       string
	text     string
	vector   []float32
	metadata map[string]any
}

type collection struct {
	fabricID  string
	dimension int
	entries   []entry
	byID      map[string]int
}

// Index stores collections in memory. It is used by tests and when no
// external vector store is configured.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection

	// dir holds one snapshot file per collection, written on Close; empty
	// for a purely in-process index.
	dir string
	// touched names the collections changed since the last flush.
	touched map[string]bool
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{collections: make(map[string]*collection), touched: make(map[string]bool)}
}

// CreateCollection creates or resets a collection. Any existing contents
// are dropped so a rebuild never mixes stale chunks.
func (x *Index) CreateCollection(_ context.Context, fabricID, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: collection dimension must be positive, got %d", domain.ErrConfiguration, dimension)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing, ok := x.collections[name]; ok && existing.dimension != dimension {
		logger.Info("collection %s dimension changed %d -> %d, recreating", name, existing.dimension, dimension)
	}
	x.collections[name] = &collection{
		fabricID:  fabricID,
		dimension: dimension,
		byID:      make(map[string]int),
	}
	x.touched[name] = true
	return nil
}

// GetCollection returns collection details.
func (x *Index) GetCollection(_ context.Context, name string) (*driven.CollectionInfo, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
	}
	return &driven.CollectionInfo{
		Name:      name,
		FabricID:  c.fabricID,
		Dimension: c.dimension,
		Count:     len(c.entries),
	}, nil
}

// Add upserts a batch of chunks.
func (x *Index) Add(_ context.Context, name string, req driven.AddRequest) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.collections[name]
	if !ok {
		return fmt.Errorf("%w: collection %s does not exist", domain.ErrIndexInconsistency, name)
	}
	if err := vector.ValidateBatch(req, c.dimension); err != nil {
		return err
	}

	for i, id := range req.IDs {
		e := entry{
			id:       id,
			text:     req.Texts[i],
			vector:   append([]float32(nil), req.Vectors[i]...),
			metadata: copyMetadata(req.Metadatas[i]),
		}
		if pos, ok := c.byID[id]; ok {
			c.entries[pos] = e
			continue
		}
		c.byID[id] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	x.touched[name] = true
	return nil
}

// Query returns the k entries most similar to vec, closest first.
// Zero vectors never match.
func (x *Index) Query(_ context.Context, name string, vec []float32, k int) ([]domain.RetrievedChunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
	}
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d",
			domain.ErrDimensionMismatch, len(vec), c.dimension)
	}

	results := make([]domain.RetrievedChunk, 0, len(c.entries))
	for _, e := range c.entries {
		sim := vector.CosineSimilarity(vec, e.vector)
		if sim == 0 && isZero(e.vector) {
			continue
		}
		results = append(results, domain.RetrievedChunk{
			ID:         e.id,
			Text:       e.text,
			Metadata:   copyMetadata(e.metadata),
			Similarity: sim,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteCollection drops a collection.
func (x *Index) DeleteCollection(_ context.Context, name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.collections[name]; !ok {
		return fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
	}
	delete(x.collections, name)
	x.touched[name] = true
	return nil
}

// Close writes the snapshots of changed collections if the index was
// opened from a directory.
func (x *Index) Close() error {
	return x.Flush()
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
