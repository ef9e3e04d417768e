package driving

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// Retriever finds relevant chunks and citations for a query.
type Retriever interface {
	// Retrieve embeds the query, searches the fabric collection and extracts
	// deduplicated citations. k <= 0 uses the default.
	Retrieve(ctx context.Context, fabricID, query string, k int) (*RetrievalResult, error)
}

// RetrievalResult is the ranked context and its citations.
type RetrievalResult struct {
	Context   []domain.RetrievedChunk
	Citations []domain.SourceCitation
}

// Responder answers questions against a fabric.
type Responder interface {
	// Answer retrieves context and forwards it with the conversation history
	// to the fabric's chat model. Cancellation follows ctx.
	Answer(ctx context.Context, fabricID, query string, history []domain.ConversationTurn) (*domain.Answer, error)
}
