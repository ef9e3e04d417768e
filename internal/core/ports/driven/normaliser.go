package driven

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// Normaliser extracts plain text from raw documents of specific MIME types.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers return 50-89, fallbacks 1-9.
	Priority() int

	// Normalise extracts the text content of a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult is the text extracted from a raw document.
type NormaliseResult struct {
	// Title is the document title if the format carries one.
	Title string

	// Content is the extracted plain text.
	Content string

	// Format names the normaliser output, e.g. "html" or "docx".
	Format string
}
