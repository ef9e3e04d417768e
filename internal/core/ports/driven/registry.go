package driven

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// NormaliserRegistry selects the appropriate normaliser for a document.
type NormaliserRegistry interface {
	// Normalise transforms a raw document using the highest-priority
	// normaliser registered for its MIME type.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// Supports reports whether a normaliser exists for mimeType.
	Supports(mimeType string) bool

	// SupportedMIMETypes returns all MIME types that can be normalised.
	SupportedMIMETypes() []string
}
