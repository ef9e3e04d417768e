package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/normalisers/textutil"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text and text-like structured formats.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/markdown",
		"text/html",
		"text/yaml",
		"application/json",
		"application/xml",
		"text/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5
}

// Normalise returns the content unchanged apart from dropping invalid
// UTF-8 sequences. The title comes from metadata, then the file name.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	title := domain.MetaString(raw.Metadata, domain.MetaTitle)
	if title == "" {
		title = textutil.TitleFromPath(raw.URI)
	}

	return &driven.NormaliseResult{
		Title:   title,
		Content: strings.ToValidUTF8(string(raw.Content), ""),
		Format:  "text",
	}, nil
}
