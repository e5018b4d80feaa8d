// Package reactions implements the reaction state machine on top of a store.Store.
//
// # Modes
//
// An Engine is built once for one mode, taken from
// Config.AllowMultipleReactionsPerUser:
//
//   - single: a user holds at most one reaction per reactable. React
//     replaces it, Toggle with the same kind removes it.
//   - multi: a user holds any set of distinct kinds. React adds a kind
//     idempotently, Toggle flips one kind.
//
// Each mode is its own implementation of the same internal contract; the
// engine never branches on a boolean per call.
//
// # Concurrency
//
// The engine keeps no state between calls. React and Unreact each map to a
// single atomic store primitive (upsert, insert or delete). Toggle reads and
// then acts, so two concurrent toggles on the same key may both see "absent"
// or both see "present". The create path is a conditional insert or upsert,
// so a double create still yields one record and the loser receives the
// winner's record. Concurrent toggles are not guaranteed to match a serial
// execution; closing that gap needs a compare-and-swap on a version column.
//
// # Errors
//
//   - *ValidationError (errors.Is ErrValidation): bad input, raised before
//     any store access
//   - store.ErrTransient: lock, timeout or cancellation, passed through
//     unchanged with no retry
//
// Reads never fail for "no data"; they return empty maps and slices.
//
// # Binding
//
// Engine.For(reactableType) returns a Reactable that fills in the type tag,
// so application code passes only the reactable id.
package reactions
