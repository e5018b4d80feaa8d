// ABOUTME: Engine configuration, call options and reaction kind normalisation
// ABOUTME: Kinds are NFC-normalised and optionally case-folded before any comparison

package reactions

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/2389/coven-reactions/internal/store"
)

// Config is fixed at engine construction.
type Config struct {
	// AllowMultipleReactionsPerUser selects multi mode.
	AllowMultipleReactionsPerUser bool
	// ReactionTypes is the whitelist of kinds. Empty means unrestricted.
	ReactionTypes []string
	// ReactionTypesCaseInsensitive folds case before storing and matching.
	ReactionTypesCaseInsensitive bool
	// StoreName names the backing collection, e.g. "Reaction".
	StoreName string
}

// DefaultConfig returns single mode, no whitelist, case-insensitive kinds.
func DefaultConfig() Config {
	return Config{
		AllowMultipleReactionsPerUser: false,
		ReactionTypesCaseInsensitive:  true,
		StoreName:                     "Reaction",
	}
}

// Mode returns the store mode this configuration requires.
func (c Config) Mode() store.Mode {
	if c.AllowMultipleReactionsPerUser {
		return store.ModeMulti
	}
	return store.ModeSingle
}

// normalizer canonicalises reaction kinds.
type normalizer struct {
	fold bool
}

func (n normalizer) normalize(kind string) string {
	if kind == "" {
		return kind
	}
	kind = norm.NFC.String(kind)
	if n.fold {
		// Casers are stateful, so each call gets its own.
		kind = cases.Fold().String(kind)
	}
	return kind
}

// whitelist is the normalised set of allowed kinds. A nil whitelist allows everything.
type whitelist map[string]struct{}

func newWhitelist(kinds []string, n normalizer) whitelist {
	if len(kinds) == 0 {
		return nil
	}
	w := make(whitelist, len(kinds))
	for _, k := range kinds {
		w[n.normalize(k)] = struct{}{}
	}
	return w
}

func (w whitelist) allows(kind string) bool {
	if w == nil {
		return true
	}
	_, ok := w[kind]
	return ok
}

// Option adjusts a single engine call.
type Option func(*callOptions)

type callOptions struct {
	session    store.Session
	projection []string
	limit      int
	skip       int
	kind       string
}

func collect(opts []Option) callOptions {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}
	return co
}

// WithSession runs the call inside sess. The engine never opens its own transaction.
func WithSession(sess store.Session) Option {
	return func(o *callOptions) { o.session = sess }
}

// WithProjection limits returned records to the named fields (see store.Field*).
func WithProjection(fields ...string) Option {
	return func(o *callOptions) { o.projection = fields }
}

// WithLimit sets the page size. Zero means store.DefaultLimit.
func WithLimit(n int) Option {
	return func(o *callOptions) { o.limit = n }
}

// WithSkip sets how many records to skip.
func WithSkip(n int) Option {
	return func(o *callOptions) { o.skip = n }
}

// WithKind filters ListReactors to one reaction kind.
func WithKind(kind string) Option {
	return func(o *callOptions) { o.kind = kind }
}
