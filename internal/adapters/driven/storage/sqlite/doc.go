// Package sqlite provides a SQLite-based FabricStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.fabric/data/fabrics.db
//
// # Concurrency
//
// Writes use optimistic concurrency on the revision column. Update retries
// its read-modify-write cycle when another writer got there first.
package sqlite
