package services

import (
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

const (
	snippetLength = 200
	noPreview     = "No preview available"
)

// ExtractCitations returns one citation per logical document, in rank
// order. Each citation carries the snippet of its most similar chunk, so
// an unsorted input still cites the best match. It never fails: a
// malformed chunk yields an empty list.
func ExtractCitations(chunks []domain.RetrievedChunk) (citations []domain.SourceCitation) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("citation extraction failed: %v", r)
			citations = []domain.SourceCitation{}
		}
	}()

	seen := make(map[string]int, len(chunks))
	best := make([]float64, 0, len(chunks))
	citations = make([]domain.SourceCitation, 0, len(chunks))
	for i, chunk := range chunks {
		meta := chunk.Metadata
		key := domain.ResolveDocumentKey(meta, i,
			domain.MetaString(meta, domain.MetaDocID),
			domain.MetaString(meta, domain.MetaID))
		if at, ok := seen[key]; ok {
			if chunk.Similarity > best[at] {
				best[at] = chunk.Similarity
				citations[at].Snippet = snippet(chunk.Text)
			}
			continue
		}
		seen[key] = len(citations)
		best = append(best, chunk.Similarity)

		title := domain.FirstMeta(meta, domain.MetaShortDescription, domain.MetaTitle, domain.MetaNumber)
		if title == "" {
			title = key
		}
		link := domain.FirstMeta(meta, domain.MetaLink, domain.MetaNavLink)
		if link == "" {
			link = "#doc-" + key
		}

		citations = append(citations, domain.SourceCitation{
			ID:      key,
			Title:   title,
			Snippet: snippet(chunk.Text),
			Link:    link,
			Table:   domain.MetaString(meta, domain.MetaTable),
			SysID:   domain.MetaString(meta, domain.MetaSysID),
		})
	}
	return citations
}

func snippet(text string) string {
	if text == "" {
		return noPreview
	}
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}
