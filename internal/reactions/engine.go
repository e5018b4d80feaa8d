// ABOUTME: Reaction engine: validates input and drives the mode's transitions against the store
// ABOUTME: Also hosts the read-side aggregation (counts, user reactions, reactor listings)

package reactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/coven-reactions/internal/store"
)

const tracerName = "github.com/2389/coven-reactions/internal/reactions"

// Ref identifies a reactable entity by type tag and id.
type Ref struct {
	Type string
	ID   string
}

// Engine applies reactions to any reactable type. It is safe for concurrent use.
type Engine struct {
	store   store.Store
	mode    mode
	cfg     Config
	norm    normalizer
	allowed whitelist
	logger  *slog.Logger
	tracer  trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider sets where engine spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// New builds an engine over st. The store must enforce the unique key that
// cfg's mode requires.
func New(st store.Store, cfg Config, opts ...EngineOption) (*Engine, error) {
	if st == nil {
		return nil, errors.New("reactions: nil store")
	}
	if st.Mode() != cfg.Mode() {
		return nil, fmt.Errorf("%w: engine wants %s, store enforces %s", store.ErrModeMismatch, cfg.Mode(), st.Mode())
	}

	n := normalizer{fold: cfg.ReactionTypesCaseInsensitive}
	e := &Engine{
		store:   st,
		mode:    modeFor(cfg.Mode()),
		cfg:     cfg,
		norm:    n,
		allowed: newWhitelist(cfg.ReactionTypes, n),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("component", "reactions", "store", cfg.StoreName, "mode", e.mode.name())
	return e, nil
}

// Mode reports which transition rules the engine applies.
func (e *Engine) Mode() store.Mode {
	return e.mode.name()
}

// For returns the binding for one reactable type.
func (e *Engine) For(reactableType string) *Reactable {
	return &Reactable{engine: e, typ: reactableType}
}

// Normalize returns kind as the engine would store it.
func (e *Engine) Normalize(kind string) string {
	return e.norm.normalize(kind)
}

// validate checks the identifying fields and, when kind is non-empty,
// normalises it and checks the whitelist. It returns the normalised kind.
func (e *Engine) validate(ref Ref, userID, kind string, kindRequired bool) (string, error) {
	if err := required("reactable type", ref.Type); err != nil {
		return "", err
	}
	if err := required("reactable id", ref.ID); err != nil {
		return "", err
	}
	if err := required("user id", userID); err != nil {
		return "", err
	}

	kind = e.norm.normalize(kind)
	if kind == "" {
		if kindRequired {
			return "", required("reaction", kind)
		}
		return "", nil
	}
	if !e.allowed.allows(kind) {
		return "", &ValidationError{Field: "reaction", Value: kind, Reason: "not allowed"}
	}
	return kind, nil
}

func (e *Engine) startSpan(ctx context.Context, op string, ref Ref) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "reactions."+op, trace.WithAttributes(
		attribute.String("reactable.type", ref.Type),
		attribute.String("reactable.id", ref.ID),
		attribute.String("reactions.mode", string(e.mode.name())),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// React gives userID's kind reaction to ref. In single mode it replaces any
// previous kind; in multi mode it adds kind and is idempotent.
func (e *Engine) React(ctx context.Context, ref Ref, userID, kind string, meta map[string]any, opts ...Option) (rec *store.Reaction, err error) {
	ctx, span := e.startSpan(ctx, "React", ref)
	defer func() { endSpan(span, err) }()

	kind, err = e.validate(ref, userID, kind, true)
	if err != nil {
		return nil, err
	}
	co := collect(opts)

	rec, err = e.mode.react(ctx, e.store, co.session, &store.Reaction{
		ReactableType: ref.Type,
		ReactableID:   ref.ID,
		UserID:        userID,
		Reaction:      kind,
		Meta:          meta,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("reaction set", "type", ref.Type, "reactable", ref.ID, "user", userID, "reaction", kind, "id", rec.ID)
	return rec, nil
}

// Unreact removes userID's reactions on ref. An empty kind removes all of
// them; in single mode kind is ignored. Returns the number removed.
func (e *Engine) Unreact(ctx context.Context, ref Ref, userID, kind string, opts ...Option) (n int64, err error) {
	ctx, span := e.startSpan(ctx, "Unreact", ref)
	defer func() { endSpan(span, err) }()

	kind, err = e.validate(ref, userID, kind, false)
	if err != nil {
		return 0, err
	}
	co := collect(opts)

	key := store.Filter{ReactableType: ref.Type, ReactableID: ref.ID, UserID: userID}
	n, err = e.mode.unreact(ctx, e.store, co.session, key, kind)
	if err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int64("reactions.removed", n))
	e.logger.Debug("reactions removed", "type", ref.Type, "reactable", ref.ID, "user", userID, "reaction", kind, "count", n)
	return n, nil
}

// Toggle removes kind if userID holds it, otherwise sets it. Concurrent
// toggles on the same key are not serialised; see the package docs.
func (e *Engine) Toggle(ctx context.Context, ref Ref, userID, kind string, meta map[string]any, opts ...Option) (res *ToggleResult, err error) {
	ctx, span := e.startSpan(ctx, "Toggle", ref)
	defer func() { endSpan(span, err) }()

	kind, err = e.validate(ref, userID, kind, true)
	if err != nil {
		return nil, err
	}
	co := collect(opts)

	res, err = e.mode.toggle(ctx, e.store, co.session, &store.Reaction{
		ReactableType: ref.Type,
		ReactableID:   ref.ID,
		UserID:        userID,
		Reaction:      kind,
		Meta:          meta,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Bool("reactions.removed", res.Removed))
	e.logger.Debug("reaction toggled", "type", ref.Type, "reactable", ref.ID, "user", userID, "reaction", kind, "removed", res.Removed)
	return res, nil
}

// Counts returns the number of reactions on ref grouped by kind.
func (e *Engine) Counts(ctx context.Context, ref Ref, opts ...Option) (counts map[string]int, err error) {
	ctx, span := e.startSpan(ctx, "Counts", ref)
	defer func() { endSpan(span, err) }()

	if err := e.validateRef(ref); err != nil {
		return nil, err
	}
	co := collect(opts)

	counts, err = e.store.AggregateCounts(ctx, co.session, store.Filter{ReactableType: ref.Type, ReactableID: ref.ID})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// UserReactions returns userID's reactions on ref, newest first. In single
// mode this is at most one record.
func (e *Engine) UserReactions(ctx context.Context, ref Ref, userID string, opts ...Option) (recs []*store.Reaction, err error) {
	ctx, span := e.startSpan(ctx, "UserReactions", ref)
	defer func() { endSpan(span, err) }()

	if err := e.validateRef(ref); err != nil {
		return nil, err
	}
	if err := required("user id", userID); err != nil {
		return nil, err
	}

	return e.find(ctx, store.Filter{ReactableType: ref.Type, ReactableID: ref.ID, UserID: userID}, collect(opts))
}

// ListReactors returns reactions on ref newest first, optionally narrowed
// with WithKind.
func (e *Engine) ListReactors(ctx context.Context, ref Ref, opts ...Option) (recs []*store.Reaction, err error) {
	ctx, span := e.startSpan(ctx, "ListReactors", ref)
	defer func() { endSpan(span, err) }()

	if err := e.validateRef(ref); err != nil {
		return nil, err
	}
	co := collect(opts)

	f := store.Filter{ReactableType: ref.Type, ReactableID: ref.ID, Reaction: e.norm.normalize(co.kind)}
	return e.find(ctx, f, co)
}

func (e *Engine) validateRef(ref Ref) error {
	if err := required("reactable type", ref.Type); err != nil {
		return err
	}
	return required("reactable id", ref.ID)
}

// find runs a paged query and applies the projection.
func (e *Engine) find(ctx context.Context, f store.Filter, co callOptions) ([]*store.Reaction, error) {
	if err := store.ValidateProjection(co.projection); err != nil {
		return nil, &ValidationError{Field: "projection", Reason: err.Error()}
	}

	recs, err := e.store.FindMany(ctx, co.session, f, store.Page{Skip: co.skip, Limit: co.limit})
	if err != nil {
		return nil, err
	}

	out := make([]*store.Reaction, 0, len(recs))
	for _, r := range recs {
		p, err := store.Project(r, co.projection)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
