package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// Ensure FabricStore implements the interface.
var _ driven.FabricStore = (*FabricStore)(nil)

// FabricStore is an in-memory implementation of driven.FabricStore.
// Records are copied on the way in and out so callers never share state.
type FabricStore struct {
	mu      sync.RWMutex
	fabrics map[string]*domain.Fabric
	now     func() time.Time
}

// NewFabricStore creates a new in-memory fabric store.
func NewFabricStore() *FabricStore {
	return &FabricStore{
		fabrics: make(map[string]*domain.Fabric),
		now:     time.Now,
	}
}

// Create stores a new fabric.
func (s *FabricStore) Create(_ context.Context, fabric *domain.Fabric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fabrics[fabric.ID]; ok {
		return fmt.Errorf("%w: fabric %s", domain.ErrAlreadyExists, fabric.ID)
	}
	stored := fabric.Clone()
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Revision = 1
	s.fabrics[fabric.ID] = stored

	fabric.CreatedAt = stored.CreatedAt
	fabric.UpdatedAt = stored.UpdatedAt
	fabric.Revision = stored.Revision
	return nil
}

// Get retrieves a fabric by ID.
func (s *FabricStore) Get(_ context.Context, id string) (*domain.Fabric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fabric, ok := s.fabrics[id]
	if !ok {
		return nil, fmt.Errorf("%w: fabric %s", domain.ErrNotFound, id)
	}
	return fabric.Clone(), nil
}

// List returns all fabrics ordered by creation time.
func (s *FabricStore) List(_ context.Context) ([]*domain.Fabric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Fabric, 0, len(s.fabrics))
	for _, fabric := range s.fabrics {
		result = append(result, fabric.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Update applies mutate under the store lock.
func (s *FabricStore) Update(
	_ context.Context,
	id string,
	mutate func(*domain.Fabric) error,
) (*domain.Fabric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.fabrics[id]
	if !ok {
		return nil, fmt.Errorf("%w: fabric %s", domain.ErrNotFound, id)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()
	next.Revision = current.Revision + 1
	s.fabrics[id] = next
	return next.Clone(), nil
}

// CompareAndSwap replaces the record if the revisions match.
func (s *FabricStore) CompareAndSwap(_ context.Context, fabric *domain.Fabric) (*domain.Fabric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.fabrics[fabric.ID]
	if !ok {
		return nil, fmt.Errorf("%w: fabric %s", domain.ErrNotFound, fabric.ID)
	}
	if current.Revision != fabric.Revision {
		return nil, fmt.Errorf("%w: fabric %s revision %d, stored %d",
			domain.ErrConflict, fabric.ID, fabric.Revision, current.Revision)
	}

	next := fabric.Clone()
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()
	next.Revision = current.Revision + 1
	s.fabrics[fabric.ID] = next
	return next.Clone(), nil
}

// Delete removes a fabric.
func (s *FabricStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fabrics[id]; !ok {
		return fmt.Errorf("%w: fabric %s", domain.ErrNotFound, id)
	}
	delete(s.fabrics, id)
	return nil
}
