package domain

import (
	"fmt"
	"strings"
)

// Metadata keys computed by the chunker. Document metadata never overrides them.
const (
	MetaSource     = "source"
	MetaDocID      = "doc_id"
	MetaChunkIndex = "chunk_index"
)

// Provenance-specific metadata keys used for identifier and title resolution.
const (
	MetaNumber           = "number"
	MetaSysID            = "sys_id"
	MetaID               = "id"
	MetaShortDescription = "short_description"
	MetaTitle            = "title"
	MetaLink             = "link"
	MetaNavLink          = "nav_link"
	MetaTable            = "table"
)

// SourceDocument is raw text produced by a DocumentSource.
// It is consumed once by the chunker and never persisted.
type SourceDocument struct {
	// ID is the source-assigned identifier, possibly empty.
	ID string

	// Content is the raw text.
	Content string

	// Source is the provenance tag (upload, servicenow, sharepoint, demo).
	Source string

	// Metadata carries provenance-specific identifiers such as number or sys_id.
	Metadata map[string]any
}

// Chunk is an overlapping word window derived from exactly one SourceDocument.
type Chunk struct {
	// ID is "{docId}-chunk-{globalIndex}".
	ID string

	// DocID is the resolved logical document key.
	DocID string

	// Index is the global chunk index within the build batch.
	Index int

	// Text is the windowed words joined by single spaces.
	Text string

	// Metadata is the document metadata merged with source, doc_id and chunk_index.
	Metadata map[string]any
}

// RetrievedChunk is one entry of the ranked context returned by a query.
type RetrievedChunk struct {
	ID   string
	Text string

	Metadata map[string]any

	// Similarity is 1 - cosine distance; higher is closer.
	Similarity float64
}

// SourceCitation is a reference to a logical document, deduplicated across chunks.
type SourceCitation struct {
	ID      string
	Title   string
	Snippet string
	Link    string

	// Table and SysID are set for ServiceNow records only.
	Table string
	SysID string
}

// ConversationTurn is a single prior message in a chat.
type ConversationTurn struct {
	// Role is "user" or "assistant"; other roles are ignored.
	Role    string
	Content string
}

// Answer is the response to a question against a fabric.
type Answer struct {
	Text      string
	Citations []SourceCitation

	// ContextUsed is the number of retrieved chunks sent to the model.
	ContextUsed int

	// Model is the chat model that produced the answer, empty if none was called.
	Model string
}

// MetaString returns a metadata value as a trimmed string, or "" when absent.
func MetaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// FirstMeta returns the first non-empty metadata value among keys.
func FirstMeta(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := MetaString(meta, k); s != "" {
			return s
		}
	}
	return ""
}

// ResolveDocumentKey derives a stable logical-document key from metadata.
// The priority is number, then sys_id, then the given fallbacks in order,
// then "doc-{ordinal}".
func ResolveDocumentKey(meta map[string]any, ordinal int, fallbacks ...string) string {
	if key := FirstMeta(meta, MetaNumber, MetaSysID); key != "" {
		return key
	}
	for _, f := range fallbacks {
		if f = strings.TrimSpace(f); f != "" {
			return f
		}
	}
	return fmt.Sprintf("doc-%d", ordinal)
}

// PlaceholderContent is ingested when a fabric has no configured source.
const PlaceholderContent = "Sample knowledge fabric content for demonstration purposes."

// PlaceholderDocument returns the single demonstration document for a fabric.
func PlaceholderDocument(fabricID string) SourceDocument {
	return SourceDocument{
		ID:      "demo-" + fabricID,
		Content: PlaceholderContent,
		Source:  string(SourceKindDemo),
		Metadata: map[string]any{
			MetaSource: string(SourceKindDemo),
		},
	}
}

// DefaultAnswerSystemPrompt is the system prompt used when the user has
// not customised it.
const DefaultAnswerSystemPrompt = "You are a helpful assistant for Service Operations. " +
	"Use the provided knowledge base context to answer questions accurately. " +
	"If the context doesn't contain relevant information, say so. " +
	"Always cite sources when possible."
