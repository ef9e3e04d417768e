package html

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/normalisers/textutil"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise strips markup and returns the readable text. The title comes
// from the <title> element, falling back to the file name.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := string(raw.Content)
	return &driven.NormaliseResult{
		Title:   extractHTMLTitle(content, raw.URI),
		Content: stripHTML(content),
		Format:  "html",
	}, nil
}

var (
	titleTag         = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropElements     = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)[^>]*>.*?</(script|style|noscript|head|svg)>`)
	htmlComments     = regexp.MustCompile(`(?s)<!--.*?-->`)
	closeBlocks      = regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlocks       = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	lineBreakTags    = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags          = regexp.MustCompile(`<[^>]+>`)
	horizontalSpaces = regexp.MustCompile(`[ \t]+`)
)

func extractHTMLTitle(content, uri string) string {
	if m := titleTag.FindStringSubmatch(content); len(m) > 1 {
		if title := strings.TrimSpace(html.UnescapeString(m[1])); title != "" {
			return title
		}
	}
	return textutil.TitleFromPath(uri)
}

// stripHTML removes tags and returns one line per block of visible text.
func stripHTML(content string) string {
	content = dropElements.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = openBlocks.ReplaceAllString(content, "\n")
	content = closeBlocks.ReplaceAllString(content, "\n")
	content = lineBreakTags.ReplaceAllString(content, "\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = horizontalSpaces.ReplaceAllString(content, " ")

	return textutil.NonEmptyLines(content)
}
