// Package chunker provides a fixed-size word-window chunking processor.
package chunker

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of words per chunk.
const DefaultChunkSize = 512

// DefaultChunkOverlap is the default number of overlapping words.
const DefaultChunkOverlap = 64

// Processor splits documents into overlapping word windows.
// Word count approximates token count.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the default chunk size in words.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the default overlap between chunks in words.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Validate checks that the window advances on every step.
func Validate(chunkSize, chunkOverlap int) error {
	return domain.ValidateChunking(chunkSize, chunkOverlap)
}

// Process chunks documents with the processor's configured size and overlap.
func (p *Processor) Process(docs []domain.SourceDocument) ([]domain.Chunk, error) {
	return p.Chunk(docs, p.chunkSize, p.overlap)
}

// Chunk splits every document into windows of chunkSize words advancing by
// chunkSize-chunkOverlap words. The chunk index runs across the whole batch.
func (p *Processor) Chunk(docs []domain.SourceDocument, chunkSize, chunkOverlap int) ([]domain.Chunk, error) {
	if err := Validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	stride := chunkSize - chunkOverlap
	var chunks []domain.Chunk
	index := 0

	for i, doc := range docs {
		words := strings.Fields(doc.Content)
		if len(words) == 0 {
			continue
		}

		docID := domain.ResolveDocumentKey(doc.Metadata, i, doc.ID)

		for start := 0; start < len(words); start += stride {
			end := min(start+chunkSize, len(words))

			chunks = append(chunks, domain.Chunk{
				ID:       fmt.Sprintf("%s-chunk-%d", docID, index),
				DocID:    docID,
				Index:    index,
				Text:     strings.Join(words[start:end], " "),
				Metadata: chunkMetadata(doc, docID, index),
			})
			index++

			if end == len(words) {
				break
			}
		}
	}

	return chunks, nil
}

// chunkMetadata copies document metadata and sets the computed keys last so
// document keys never override them.
func chunkMetadata(doc domain.SourceDocument, docID string, index int) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[domain.MetaSource] = doc.Source
	meta[domain.MetaDocID] = docID
	meta[domain.MetaChunkIndex] = index
	return meta
}
