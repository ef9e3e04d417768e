package driven

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// FabricStore persists fabric records.
// Every write is atomic with respect to readers of the same fabric:
// a reader never sees Status, UpdatedAt and Error from different writes.
type FabricStore interface {
	// Create stores a new fabric. Returns domain.ErrAlreadyExists on id clash.
	Create(ctx context.Context, fabric *domain.Fabric) error

	// Get returns a copy of the fabric, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Fabric, error)

	// List returns copies of all fabrics ordered by creation time.
	List(ctx context.Context) ([]*domain.Fabric, error)

	// Update applies mutate to the current record and stores the result
	// atomically, bumping Revision and UpdatedAt. If mutate returns an error
	// nothing is written.
	Update(ctx context.Context, id string, mutate func(*domain.Fabric) error) (*domain.Fabric, error)

	// CompareAndSwap replaces the record only if its stored Revision equals
	// fabric.Revision. Returns domain.ErrConflict otherwise.
	CompareAndSwap(ctx context.Context, fabric *domain.Fabric) (*domain.Fabric, error)

	// Delete removes a fabric. Returns domain.ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
}
