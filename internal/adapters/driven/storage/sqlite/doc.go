// Package sqlite provides the SQLite-backed document metadata store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. Vectors live in the vector index; this store only tracks what was
// uploaded and how processing went.
//
// # Schema
//
// The schema is managed through versioned migrations in the migrations/
// directory. Each migration is a pair of .up.sql and .down.sql files and
// applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.finrag/data/metadata.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. SQLite runs in WAL mode behind
// a single pooled connection, so concurrent writers queue instead of failing.
package sqlite
