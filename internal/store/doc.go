// Package store provides persistent storage for reactions using SQLite.
//
// # Architecture
//
// Store is the interface the reaction engine depends on. It exposes a small
// set of primitives whose atomicity the engine relies on:
//
//   - InsertIfAbsent: plain insert, ErrConflict on a unique-key collision
//   - UpsertReplace: INSERT ... ON CONFLICT DO UPDATE ... RETURNING
//   - DeleteMatching: delete by filter, returns the count removed
//   - FindOne / FindMany: newest-first reads with skip/limit
//   - AggregateCounts: GROUP BY reaction
//
// SQLiteStore is the production implementation. MockStore is an in-memory
// implementation that enforces the same unique keys.
//
// # Modes
//
// A store is created in one Mode and keeps it for the life of the table:
//
//   - ModeSingle: UNIQUE(reactable_type, reactable_id, user_id)
//   - ModeMulti:  UNIQUE(reactable_type, reactable_id, user_id, reaction)
//
// The mode is recorded in the reaction_store_modes table. Opening an
// existing table with a different mode fails with ErrModeMismatch.
//
// # Drivers
//
// Two database/sql drivers are supported:
//
//   - "sqlite": modernc.org/sqlite (pure Go, default)
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo)
//
// The store uses WAL mode and a busy timeout set through the DSN so that
// every pooled connection waits on locks instead of failing immediately.
//
// # Error Handling
//
//   - ErrConflict: the write collided with the mode's unique key
//   - ErrNotFound: FindOne matched nothing
//   - ErrTransient: lock contention, timeout or cancellation (wrapped, check with errors.Is)
//   - ErrModeMismatch: table exists under the other mode
//
// # Sessions
//
// Begin returns a Session wrapping a transaction. Every operation accepts an
// optional Session; nil runs the statement on its own.
//
// # Testing
//
// Use NewMockStore(mode) for unit tests and NewSQLiteStore on a t.TempDir()
// path for integration tests.
package store
