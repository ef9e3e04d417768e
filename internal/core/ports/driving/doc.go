// Package driving defines the interfaces that external actors (CLI, MCP)
// use to drive the application.
//
//   - FabricService: Create, read, update and delete fabric records
//   - BuildOrchestrator: Start, observe and wait for builds
//   - Retriever, Responder: Similarity search and grounded answers
//   - Scheduler: Periodic rebuilds of remote sources
//   - SettingsService: Typed application settings
//
// Implementations live in internal/core/services.
package driving
