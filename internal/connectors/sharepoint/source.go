package sharepoint

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/normalisers"
)

var _ driven.DocumentSource = (*Source)(nil)

// Metadata keys set on SharePoint documents.
const (
	MetaFileName = "file_name"
	MetaURL      = "url"
	MetaLibrary  = "library"
)

// Source reads the files of one document library.
type Source struct {
	cfg      Config
	client   *Client
	registry driven.NormaliserRegistry
}

// New creates a SharePoint source. A nil httpClient uses the default transport.
func New(cfg Config, registry driven.NormaliserRegistry, httpClient *http.Client) *Source {
	return &Source{cfg: cfg, client: NewClient(cfg, httpClient), registry: registry}
}

// Kind returns the sharepoint provenance tag.
func (s *Source) Kind() domain.SourceKind {
	return domain.SourceKindSharePoint
}

// Fetch downloads and normalises every supported file in the library.
// Files that fail individually are logged and skipped; authorization
// failures abort the fetch.
func (s *Source) Fetch(ctx context.Context) ([]domain.SourceDocument, error) {
	drv, err := s.client.ResolveDrive(ctx)
	if err != nil {
		return nil, s.unavailable(ctx, err)
	}

	items, err := s.client.ListFiles(ctx, drv.ID)
	if err != nil {
		return nil, s.unavailable(ctx, err)
	}

	var docs []domain.SourceDocument
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mimeType := itemMIMEType(item)
		if !s.registry.Supports(mimeType) {
			logger.Debug("sharepoint: skipping %s (%s)", item.Name, mimeType)
			continue
		}
		if item.Size > MaxFileSize {
			logger.Warn("sharepoint: skipping %s: %d bytes exceeds limit", item.Name, item.Size)
			continue
		}

		doc, ok, err := s.readItem(ctx, drv.ID, item, mimeType)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if IsUnauthorized(err) {
				return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
			}
			logger.Warn("sharepoint: failed to process %s: %v", item.Name, err)
			continue
		}
		if ok {
			docs = append(docs, doc)
		}
	}

	logger.Debug("sharepoint: library %s returned %d documents from %d files", s.cfg.Library, len(docs), len(items))
	return docs, nil
}

func (s *Source) readItem(ctx context.Context, driveID string, item driveItem, mimeType string) (domain.SourceDocument, bool, error) {
	content, err := s.client.Download(ctx, driveID, item.ID)
	if err != nil {
		return domain.SourceDocument{}, false, err
	}

	result, err := s.registry.Normalise(ctx, &domain.RawDocument{
		URI:      item.WebURL,
		MIMEType: mimeType,
		Content:  content,
		Metadata: map[string]any{domain.MetaTitle: item.Name},
	})
	if err != nil {
		return domain.SourceDocument{}, false, err
	}
	if strings.TrimSpace(result.Content) == "" {
		return domain.SourceDocument{}, false, nil
	}

	meta := map[string]any{
		MetaFileName: item.Name,
		MetaURL:      item.WebURL,
		MetaLibrary:  s.cfg.Library,
	}
	if result.Title != "" {
		meta[domain.MetaTitle] = result.Title
	}

	return domain.SourceDocument{
		ID:       item.Name,
		Content:  result.Content,
		Source:   string(domain.SourceKindSharePoint),
		Metadata: meta,
	}, true, nil
}

func (s *Source) unavailable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
}

// itemMIMEType prefers the Graph-reported type unless it is generic.
func itemMIMEType(item driveItem) string {
	if item.File != nil && item.File.MimeType != "" {
		if mt, _, err := mime.ParseMediaType(item.File.MimeType); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	return normalisers.DetectMIMEType(item.Name)
}
