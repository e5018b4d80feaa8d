// ABOUTME: Store interface and data types for reaction persistence
// ABOUTME: Defines Reaction, Filter, Page, Mode and the sentinel errors the engine relies on

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no reaction matches a FindOne filter
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would violate the mode's unique key
var ErrConflict = errors.New("reaction already exists")

// ErrTransient wraps connectivity, lock and timeout failures from the database.
// Callers decide whether to retry.
var ErrTransient = errors.New("transient store error")

// ErrModeMismatch is returned when a store is opened with a different mode
// than the one its table was created with.
var ErrModeMismatch = errors.New("store mode does not match existing table")

// ErrEmptyFilter is returned by DeleteMatching when the filter does not name a reactable.
var ErrEmptyFilter = errors.New("filter must name a reactable")

// ErrForeignSession is returned when a Session from another store is passed in.
var ErrForeignSession = errors.New("session does not belong to this store")

// ErrSessionDone is returned when a committed or rolled back Session is reused.
var ErrSessionDone = errors.New("session already finished")

// Mode selects which uniqueness constraint the store enforces.
type Mode string

const (
	// ModeSingle allows one reaction per (reactable, user).
	ModeSingle Mode = "single"
	// ModeMulti allows one reaction per (reactable, user, reaction).
	ModeMulti Mode = "multi"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeMulti
}

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown store mode %q", s)
	}
	return m, nil
}

// Reaction is a single user's reaction to a reactable entity.
type Reaction struct {
	ID            string         `json:"id,omitempty"`
	ReactableType string         `json:"reactable_type,omitempty"`
	ReactableID   string         `json:"reactable_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Reaction      string         `json:"reaction,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitzero"`
	UpdatedAt     time.Time      `json:"updated_at,omitzero"`
}

// Filter narrows a query. Empty fields match anything.
type Filter struct {
	ID            string
	ReactableType string
	ReactableID   string
	UserID        string
	Reaction      string
}

// KeyFilter returns the filter addressing r's unique key under mode m.
func KeyFilter(r *Reaction, m Mode) Filter {
	f := Filter{
		ReactableType: r.ReactableType,
		ReactableID:   r.ReactableID,
		UserID:        r.UserID,
	}
	if m == ModeMulti {
		f.Reaction = r.Reaction
	}
	return f
}

// Page bounds a FindMany result. Results are always newest first.
type Page struct {
	Skip  int
	Limit int
}

// Session is an open transaction. Passing it to store calls makes them part
// of the same unit of work. A nil Session runs each call on its own.
type Session interface {
	Commit() error
	Rollback() error
}

// Store defines the persistence operations the reaction engine needs.
// Uniqueness is enforced by the store itself, never by check-then-write.
type Store interface {
	// Mode reports which unique key the store enforces.
	Mode() Mode

	// Begin opens a Session.
	Begin(ctx context.Context) (Session, error)

	// InsertIfAbsent inserts r. Returns ErrConflict if r's unique key already exists.
	InsertIfAbsent(ctx context.Context, sess Session, r *Reaction) (*Reaction, error)

	// UpsertReplace atomically inserts r or replaces the record holding r's unique key.
	UpsertReplace(ctx context.Context, sess Session, r *Reaction) (*Reaction, error)

	// DeleteMatching removes every record matching f and reports how many went.
	DeleteMatching(ctx context.Context, sess Session, f Filter) (int64, error)

	// FindOne returns the newest record matching f, or ErrNotFound.
	FindOne(ctx context.Context, sess Session, f Filter) (*Reaction, error)

	// FindMany returns records matching f, newest first.
	FindMany(ctx context.Context, sess Session, f Filter, p Page) ([]*Reaction, error)

	// AggregateCounts groups records matching f by reaction.
	AggregateCounts(ctx context.Context, sess Session, f Filter) (map[string]int, error)

	// Ping checks the store can serve requests.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

func cloneReaction(r *Reaction) *Reaction {
	c := *r
	if r.Meta != nil {
		c.Meta = make(map[string]any, len(r.Meta))
		for k, v := range r.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}
