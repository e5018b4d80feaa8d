// ABOUTME: Stub mattn/go-sqlite3 error classification for !cgo builds
// ABOUTME: The stub driver never opens a connection, so no sqlite3.Error occurs

//go:build !cgo

package store

import (
	// Registers the go-sqlite3 stub driver, which reports that cgo is required.
	_ "github.com/mattn/go-sqlite3"
)

func mattnConstraintViolation(error) (ok, matched bool) { return false, false }

func mattnTransient(error) (ok, matched bool) { return false, false }
