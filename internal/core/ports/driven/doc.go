// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - FabricStore: Fabric record persistence with atomic updates
//   - DocumentSource: Fetches raw documents for a fabric
//   - SourceFactory: Creates document sources from configuration
//   - Normaliser, NormaliserRegistry: Extract text from raw file formats
//   - Chunker: Splits documents into overlapping word windows
//   - EmbeddingService: Turns text into a fixed-length vector
//   - VectorIndex: Per-fabric similarity-search collections
//   - EmbeddingResolver: Ordered embedding provider chain for a model
//   - ChatProvider, ChatRouter: Chat completion for answer generation
//   - PromptStore: User-editable prompt templates
//   - ConfigStore: Application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or source package
package driven
