package normalisers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/normalisers/html"
	"github.com/custodia-labs/fabric-cli/internal/normalisers/markdown"
	"github.com/custodia-labs/fabric-cli/internal/normalisers/plaintext"
)

var _ driven.NormaliserRegistry = (*Registry)(nil)

// ErrUnsupportedMIMEType is returned when no normaliser handles a document.
var ErrUnsupportedMIMEType = errors.New("unsupported MIME type")

// Registry dispatches raw documents to the highest-priority normaliser
// registered for their MIME type. Unknown text/* types fall back to the
// text/plain normalisers.
type Registry struct {
	mu     sync.RWMutex
	byMIME map[string][]driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMIME: make(map[string][]driven.Normaliser)}
}

// Default returns a registry with the html, markdown and plaintext
// normalisers registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(html.New())
	r.Register(markdown.New())
	r.Register(plaintext.New())
	return r
}

// Register adds a normaliser under each of its MIME types.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range n.SupportedMIMETypes() {
		mt = strings.ToLower(mt)
		list := append(r.byMIME[mt], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byMIME[mt] = list
	}
}

// Normalise extracts text with the best matching normaliser.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	n := r.lookup(raw.MIMEType)
	if n == nil {
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnsupportedMIMEType, raw.MIMEType, raw.URI)
	}
	return n.Normalise(ctx, raw)
}

// Supports reports whether a normaliser exists for mimeType.
func (r *Registry) Supports(mimeType string) bool {
	return r.lookup(mimeType) != nil
}

// SupportedMIMETypes returns all registered MIME types, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byMIME))
	for mt := range r.byMIME {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) lookup(mimeType string) driven.Normaliser {
	mt := mimeType
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mt = parsed
	}
	mt = strings.ToLower(strings.TrimSpace(mt))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if list := r.byMIME[mt]; len(list) > 0 {
		return list[0]
	}
	if strings.HasPrefix(mt, "text/") {
		if list := r.byMIME["text/plain"]; len(list) > 0 {
			return list[0]
		}
	}
	return nil
}
