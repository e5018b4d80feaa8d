// ABOUTME: Maps SQLite driver errors onto the store's error taxonomy
// ABOUTME: Handles both modernc.org/sqlite and mattn/go-sqlite3 error types

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	// Both imports also register their database/sql drivers; the
	// mattn/go-sqlite3 import lives in errors_cgo.go / errors_nocgo.go.
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// classify wraps a raw driver error so callers can errors.Is against
// ErrConflict or ErrTransient. Anything else is wrapped with op.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isConstraintViolation(err):
		return ErrConflict
	case isTransient(err):
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	var me *sqlite.Error
	if errors.As(err, &me) {
		switch me.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		if me.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT {
			return strings.Contains(me.Error(), "UNIQUE")
		}
		return false
	}

	if ok, matched := mattnConstraintViolation(err); matched {
		return ok
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isTransient reports lock contention, timeouts and cancellation.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var me *sqlite.Error
	if errors.As(err, &me) {
		switch me.Code() & 0xff {
		case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
			return true
		}
		return false
	}

	if ok, matched := mattnTransient(err); matched {
		return ok
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
