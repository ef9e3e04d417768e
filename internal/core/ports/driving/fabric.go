package driving

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// FabricService manages fabric records.
type FabricService interface {
	// Create validates spec and stores a new fabric in the Draft state.
	Create(ctx context.Context, spec FabricSpec) (*domain.Fabric, error)

	// Get returns a fabric by id.
	Get(ctx context.Context, id string) (*domain.Fabric, error)

	// List returns all fabrics.
	List(ctx context.Context) ([]*domain.Fabric, error)

	// Update changes a fabric's configuration. Not allowed while building.
	Update(ctx context.Context, id string, spec FabricSpec) (*domain.Fabric, error)

	// Delete removes a fabric and its vector collection.
	// Returns domain.ErrBuildInProgress while a build is running.
	Delete(ctx context.Context, id string) error
}

// FabricSpec is the user-supplied configuration of a fabric.
// Zero values take the pipeline defaults.
type FabricSpec struct {
	Name           string              `yaml:"name"`
	Description    string              `yaml:"description"`
	Source         domain.SourceConfig `yaml:"-"`
	ChunkSize      int                 `yaml:"chunk_size"`
	ChunkOverlap   int                 `yaml:"chunk_overlap"`
	EmbeddingModel string              `yaml:"embedding_model"`
	ChatModel      string              `yaml:"chat_model"`
	CollectionName string              `yaml:"collection_name"`
}
