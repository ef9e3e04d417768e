// Package demo provides a DocumentSource that returns a single sample
// document, for trying the pipeline without a real source.
package demo

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

var _ driven.DocumentSource = (*Source)(nil)

// OptionContent overrides the sample text.
const OptionContent = "content"

// DocumentID identifies the sample document.
const DocumentID = "demo-sample"

// Source returns one fixed document.
type Source struct {
	content string
}

// New creates a demo source. Empty content uses domain.PlaceholderContent.
func New(content string) *Source {
	if content == "" {
		content = domain.PlaceholderContent
	}
	return &Source{content: content}
}

// Kind returns the demo provenance tag.
func (s *Source) Kind() domain.SourceKind {
	return domain.SourceKindDemo
}

// Fetch returns the sample document.
func (s *Source) Fetch(ctx context.Context) ([]domain.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []domain.SourceDocument{{
		ID:      DocumentID,
		Content: s.content,
		Source:  string(domain.SourceKindDemo),
		Metadata: map[string]any{
			domain.MetaSource: string(domain.SourceKindDemo),
			domain.MetaTitle:  "Sample content",
		},
	}}, nil
}
