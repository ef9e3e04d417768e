package driven

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// DocumentSource fetches raw documents for a fabric build.
//
// Fetch must distinguish failure modes: an unreachable or misconfigured
// source returns an error wrapping domain.ErrSourceUnavailable, while a
// reachable source with no matching records returns an empty slice.
type DocumentSource interface {
	// Kind returns the provenance tag of the documents produced.
	Kind() domain.SourceKind

	// Fetch returns every document the source currently offers.
	Fetch(ctx context.Context) ([]domain.SourceDocument, error)
}

// SourceFactory creates document sources from fabric configuration.
type SourceFactory interface {
	// Create returns the source for cfg, or an error wrapping
	// domain.ErrConfiguration for unknown kinds or missing options.
	Create(cfg domain.SourceConfig) (DocumentSource, error)
}

// Chunker splits documents into overlapping word windows.
type Chunker interface {
	// Chunk returns chunks for all documents. Chunk indices are global
	// across the batch.
	Chunk(docs []domain.SourceDocument, chunkSize, chunkOverlap int) ([]domain.Chunk, error)
}

// WatchableSource is a DocumentSource that can report changes as they
// happen, so a fabric can be rebuilt when its documents change.
type WatchableSource interface {
	DocumentSource

	// Watch streams changes until ctx is cancelled, then closes the channel.
	Watch(ctx context.Context) (<-chan domain.SourceChange, error)

	// Close releases watch resources.
	Close() error
}
