// Package dedupe provides a time-bounded cache that lets the API replay the
// first response to a mutating request carrying a repeated Idempotency-Key.
package dedupe
