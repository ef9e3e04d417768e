package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/normalisers/textutil"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise removes Markdown syntax. Code block contents are kept as text.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := string(raw.Content)
	return &driven.NormaliseResult{
		Title:   extractMarkdownTitle(content, raw.URI),
		Content: stripMarkdown(content),
		Format:  "markdown",
	}, nil
}

// extractMarkdownTitle returns the first H1 heading or the file name.
func extractMarkdownTitle(content, uri string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return textutil.TitleFromPath(uri)
}

var (
	fencedCode   = regexp.MustCompile("(?s)```[^\n]*\n(.*?)```")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headings     = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	rules        = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	blockquotes  = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	bullets      = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numbered     = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+`)
	strongStars  = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	strongUnders = regexp.MustCompile(`__([^_]+)__`)
	emStars      = regexp.MustCompile(`\*([^*\n]+)\*`)
	emUnders     = regexp.MustCompile(`\b_([^_\n]+)_\b`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

func stripMarkdown(content string) string {
	content = fencedCode.ReplaceAllString(content, "$1")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")

	// Rules go before bullets so "* * *" is not read as a list item.
	content = rules.ReplaceAllString(content, "")
	content = headings.ReplaceAllString(content, "")
	content = blockquotes.ReplaceAllString(content, "")
	content = bullets.ReplaceAllString(content, "")
	content = numbered.ReplaceAllString(content, "")

	content = strongStars.ReplaceAllString(content, "$1")
	content = strongUnders.ReplaceAllString(content, "$1")
	content = emStars.ReplaceAllString(content, "$1")
	content = emUnders.ReplaceAllString(content, "$1")

	content = blankRuns.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
