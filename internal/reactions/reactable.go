package reactions

import (
	"context"

	"github.com/2389/coven-reactions/internal/store"
)

// Reactable binds the engine to one reactable type so callers pass only ids.
type Reactable struct {
	engine *Engine
	typ    string
}

// Type returns the reactable type tag.
func (r *Reactable) Type() string {
	return r.typ
}

func (r *Reactable) ref(id string) Ref {
	return Ref{Type: r.typ, ID: id}
}

// React sets userID's reaction on id.
func (r *Reactable) React(ctx context.Context, id, userID, kind string, meta map[string]any, opts ...Option) (*store.Reaction, error) {
	return r.engine.React(ctx, r.ref(id), userID, kind, meta, opts...)
}

// Unreact removes userID's reaction(s) on id.
func (r *Reactable) Unreact(ctx context.Context, id, userID, kind string, opts ...Option) (int64, error) {
	return r.engine.Unreact(ctx, r.ref(id), userID, kind, opts...)
}

// Toggle flips userID's kind reaction on id.
func (r *Reactable) Toggle(ctx context.Context, id, userID, kind string, meta map[string]any, opts ...Option) (*ToggleResult, error) {
	return r.engine.Toggle(ctx, r.ref(id), userID, kind, meta, opts...)
}

// Counts groups reactions on id by kind.
func (r *Reactable) Counts(ctx context.Context, id string, opts ...Option) (map[string]int, error) {
	return r.engine.Counts(ctx, r.ref(id), opts...)
}

// UserReactions lists userID's reactions on id.
func (r *Reactable) UserReactions(ctx context.Context, id, userID string, opts ...Option) ([]*store.Reaction, error) {
	return r.engine.UserReactions(ctx, r.ref(id), userID, opts...)
}

// ListReactors lists reactions on id.
func (r *Reactable) ListReactors(ctx context.Context, id string, opts ...Option) ([]*store.Reaction, error) {
	return r.engine.ListReactors(ctx, r.ref(id), opts...)
}
