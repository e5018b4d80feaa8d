// ABOUTME: Transition rules for single and multi reaction modes
// ABOUTME: Each mode maps react/unreact/toggle onto atomic store primitives

package reactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/coven-reactions/internal/store"
)

// ToggleResult is the outcome of Toggle: either the reaction was removed or
// Record holds the reaction now in place.
type ToggleResult struct {
	Removed bool            `json:"removed,omitempty"`
	Record  *store.Reaction `json:"record,omitempty"`
}

// mode is one set of transition rules. r always carries a normalised,
// validated kind; key filters are derived from it.
type mode interface {
	name() store.Mode
	react(ctx context.Context, st store.Store, sess store.Session, r *store.Reaction) (*store.Reaction, error)
	unreact(ctx context.Context, st store.Store, sess store.Session, key store.Filter, kind string) (int64, error)
	toggle(ctx context.Context, st store.Store, sess store.Session, r *store.Reaction) (*ToggleResult, error)
}

func modeFor(m store.Mode) mode {
	if m == store.ModeMulti {
		return multiMode{}
	}
	return singleMode{}
}

// singleMode: states NoReaction and HasReaction(kind).
type singleMode struct{}

func (singleMode) name() store.Mode { return store.ModeSingle }

// react overwrites whatever the user held with one upsert.
func (singleMode) react(ctx context.Context, st store.Store, sess store.Session, r *store.Reaction) (*store.Reaction, error) {
	return st.UpsertReplace(ctx, sess, r)
}

// unreact removes the user's reaction. kind is ignored: at most one exists.
func (singleMode) unreact(ctx context.Context, st store.Store, sess store.Session, key store.Filter, _ string) (int64, error) {
	return st.DeleteMatching(ctx, sess, key)
}

// toggle removes the reaction if the user already holds this kind, otherwise
// upserts it over whatever they held.
func (singleMode) toggle(ctx context.Context, st store.Store, sess store.Session, r *store.Reaction) (*ToggleResult, error) {
	key := store.KeyFilter(r, store.ModeSingle)

	existing, err := st.FindOne(ctx, sess, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if existing != nil && existing.Reaction == r.Reaction {
		// Conditional on id and kind so a concurrent switch to another kind survives.
		key.ID = existing.ID
		key.Reaction = r.Reaction
		if _, err := st.DeleteMatching(ctx, sess, key); err != nil {
			return nil, err
		}
		return &ToggleResult{Removed: true}, nil
	}

	rec, err := st.UpsertReplace(ctx, sess, r)
	if err != nil {
		return nil, err
	}
	return &ToggleResult{Record: rec}, nil
}

// multiMode: each kind is an independent flag.
type multiMode struct{}

func (multiMode) name() store.Mode { return store.ModeMulti }

// react inserts the kind; an existing one is returned as-is.
func (multiMode) react(ctx context.Context, st store.Store, sess store.Session, r *store.Reaction) (*store.Reaction, error) {
	rec, err := st.InsertIfAbsent(ctx, sess, r)
	if errors.Is(err, store.ErrConflict) {
		return existingAfterConflict(ctx, st, sess, r)
	}
	return rec, err
}

// unreact removes one kind, or every kind the user holds when kind is empty.
func (multiMode) unreact(ctx context.Context, st store.Store, sess store.Session, key store.Filter, kind string) (int64, error) {
	key.Reaction = kind
	return st.DeleteMatching(ctx, sess, key)
}

// toggle flips presence of exactly this kind.
func (multiMode) toggle(ctx context.Context, st store.Store, sess store.Session, r *store.Reaction) (*ToggleResult, error) {
	key := store.KeyFilter(r, store.ModeMulti)

	existing, err := st.FindOne(ctx, sess, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		key.ID = existing.ID
		if _, err := st.DeleteMatching(ctx, sess, key); err != nil {
			return nil, err
		}
		return &ToggleResult{Removed: true}, nil
	}

	rec, err := st.InsertIfAbsent(ctx, sess, r)
	if errors.Is(err, store.ErrConflict) {
		// A concurrent toggle created it first; report its record.
		rec, err = existingAfterConflict(ctx, st, sess, r)
	}
	if err != nil {
		return nil, err
	}
	return &ToggleResult{Record: rec}, nil
}

// existingAfterConflict loads the record that won a unique-key race. If it
// has already been removed again the conflict is reported.
func existingAfterConflict(ctx context.Context, st store.Store, sess store.Session, r *store.Reaction) (*store.Reaction, error) {
	rec, err := st.FindOne(ctx, sess, store.KeyFilter(r, store.ModeMulti))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("reaction changed concurrently: %w", store.ErrConflict)
	}
	return rec, err
}
