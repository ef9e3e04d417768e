// Package domain defines the core business entities for the fabric pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Fabric: A named knowledge base with its build state
//   - SourceDocument: Raw text produced by a document source
//   - Chunk: An overlapping word window derived from one document
//   - RetrievedChunk: A chunk returned by a similarity query
//   - SourceCitation: A deduplicated reference to a logical document
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
