package servicenow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

var _ driven.DocumentSource = (*Source)(nil)

// textFields are joined, in order, to form a record's document text.
var textFields = []string{"short_description", "description", "text", "question", "answer"}

// Source reads documents from ServiceNow tables.
type Source struct {
	cfg    Config
	client *Client
}

// New creates a ServiceNow source. A nil httpClient uses the default client.
func New(cfg Config, httpClient *http.Client) *Source {
	return &Source{cfg: cfg, client: NewClient(cfg, httpClient)}
}

// Kind returns the servicenow provenance tag.
func (s *Source) Kind() domain.SourceKind {
	return domain.SourceKindServiceNow
}

// Fetch reads up to Limit records from each configured table. Rejected
// credentials abort the fetch. Other per-table failures are logged and
// the table is skipped; the fetch fails only if every table failed.
func (s *Source) Fetch(ctx context.Context) ([]domain.SourceDocument, error) {
	var (
		docs     []domain.SourceDocument
		failures int
		lastErr  error
	)

	for _, table := range s.cfg.Tables {
		records, err := s.client.ListRecords(ctx, table, s.cfg.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if IsUnauthorized(err) {
				return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
			}
			logger.Warn("servicenow: failed to fetch table %s: %v", table, err)
			failures++
			lastErr = err
			continue
		}

		before := len(docs)
		for _, rec := range records {
			if doc, ok := s.toDocument(table, rec); ok {
				docs = append(docs, doc)
			}
		}
		logger.Debug("servicenow: table %s returned %d records, %d with text", table, len(records), len(docs)-before)
	}

	if failures > 0 && failures == len(s.cfg.Tables) {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, lastErr)
	}
	return docs, nil
}

// Check reads one record from the first table to verify the instance is
// reachable and the credentials are accepted.
func (s *Source) Check(ctx context.Context) (int, error) {
	table := DefaultTables[0]
	if len(s.cfg.Tables) > 0 {
		table = s.cfg.Tables[0]
	}
	records, err := s.client.ListRecords(ctx, table, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	return len(records), nil
}

// toDocument converts a record, reporting false when it has no text.
func (s *Source) toDocument(table string, rec Record) (domain.SourceDocument, bool) {
	parts := make([]string, 0, len(textFields))
	for _, f := range textFields {
		if v := rec.String(f); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return domain.SourceDocument{}, false
	}

	sysID := rec.String(domain.MetaSysID)
	number := rec.String(domain.MetaNumber)
	link, navLink := recordLinks(s.cfg.BaseURL, table, sysID, number)

	meta := map[string]any{
		domain.MetaTable:   table,
		domain.MetaLink:    link,
		domain.MetaNavLink: navLink,
	}
	if sysID != "" {
		meta[domain.MetaSysID] = sysID
	}
	if number != "" {
		meta[domain.MetaNumber] = number
	}
	if sd := rec.String(domain.MetaShortDescription); sd != "" {
		meta[domain.MetaShortDescription] = sd
	}

	id := sysID
	if id == "" {
		id = number
	}

	return domain.SourceDocument{
		ID:       table + "-" + id,
		Content:  strings.Join(parts, " "),
		Source:   string(domain.SourceKindServiceNow),
		Metadata: meta,
	}, true
}

// recordLinks returns the direct form link and the nav_to link for a
// record. Without a sys_id both fall back to a list query by number, or
// to the instance itself.
func recordLinks(base, table, sysID, number string) (link, navLink string) {
	if sysID != "" {
		link = fmt.Sprintf("%s/%s.do?sys_id=%s", base, table, url.QueryEscape(sysID))
		navLink = fmt.Sprintf("%s/nav_to.do?uri=%%2F%s.do%%3Fsys_id%%3D%s", base, table, url.QueryEscape(sysID))
		return link, navLink
	}
	if number != "" {
		link = fmt.Sprintf("%s/%s_list.do?sysparm_query=number=%s", base, table, url.QueryEscape(number))
		return link, link
	}
	return base, base
}
