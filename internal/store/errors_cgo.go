// ABOUTME: mattn/go-sqlite3 error classification, available only with cgo
// ABOUTME: The driver's Error type and codes are not defined in !cgo builds

//go:build cgo

package store

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// mattnConstraintViolation reports whether err is a mattn/go-sqlite3 UNIQUE
// or PRIMARY KEY violation; matched is false if err is not a sqlite3.Error.
func mattnConstraintViolation(err error) (ok, matched bool) {
	var ce sqlite3.Error
	if errors.As(err, &ce) {
		return ce.ExtendedCode == sqlite3.ErrConstraintUnique ||
			ce.ExtendedCode == sqlite3.ErrConstraintPrimaryKey, true
	}
	return false, false
}

// mattnTransient reports whether err is a mattn/go-sqlite3 busy/locked error;
// matched is false if err is not a sqlite3.Error.
func mattnTransient(err error) (ok, matched bool) {
	var ce sqlite3.Error
	if errors.As(err, &ce) {
		return ce.Code == sqlite3.ErrBusy || ce.Code == sqlite3.ErrLocked, true
	}
	return false, false
}
