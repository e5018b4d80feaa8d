// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Uniqueness is enforced by a mode-specific UNIQUE index; upserts use ON CONFLICT ... RETURNING

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Driver names registered by the two SQLite packages.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// DefaultTable is the table name used when Options.Table is empty.
const DefaultTable = "reactions"

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures a SQLiteStore.
type Options struct {
	Mode        Mode
	Table       string
	Driver      string        // DriverModernc (default) or DriverCGO
	BusyTimeout time.Duration // how long a writer waits on a locked database
	Logger      *slog.Logger
	Now         func() time.Time
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	mode   Mode
	table  string
	now    func() time.Time
}

// querier is the subset of *sql.DB and *sql.Tx the store issues statements through.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteSession wraps a *sql.Tx opened by a specific SQLiteStore.
type sqliteSession struct {
	tx    *sql.Tx
	owner *SQLiteStore
}

func (s *sqliteSession) Commit() error {
	if err := s.tx.Commit(); err != nil {
		if err == sql.ErrTxDone {
			return ErrSessionDone
		}
		return classify("committing session", err)
	}
	return nil
}

func (s *sqliteSession) Rollback() error {
	if err := s.tx.Rollback(); err != nil {
		if err == sql.ErrTxDone {
			return ErrSessionDone
		}
		return classify("rolling back session", err)
	}
	return nil
}

// TableName derives a table name from a model-style store name, so
// "Reaction" becomes "reactions".
func TableName(storeName string) string {
	name := strings.ToLower(strings.TrimSpace(storeName))
	if name == "" {
		return DefaultTable
	}
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return name
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	if opts.Mode == "" {
		opts.Mode = ModeSingle
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", opts.Mode)
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if !tableNameRe.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid table name %q", opts.Table)
	}
	if opts.Driver == "" {
		opts.Driver = DriverModernc
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	memory := path == ":memory:"
	if !memory {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn, err := buildDSN(opts.Driver, path, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if memory {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent performance
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		mode:   opts.Mode,
		table:  opts.Table,
		now:    opts.Now,
	}

	// The mode check runs before the unique index exists so a mismatched
	// open never touches the table.
	if err := s.checkMode(); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", opts.Driver, "table", s.table, "mode", s.mode)
	return s, nil
}

// buildDSN attaches the busy timeout in each driver's own query syntax so
// every pooled connection gets it.
func buildDSN(driver, path string, busy time.Duration) (string, error) {
	ms := busy.Milliseconds()
	switch driver {
	case DriverModernc:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, ms), nil
	case DriverCGO:
		return fmt.Sprintf("file:%s?_busy_timeout=%d", path, ms), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// createSchema creates the reactions table and its indexes.
func (s *SQLiteStore) createSchema() error {
	t := s.table

	uniqueCols := "reactable_type, reactable_id, user_id"
	if s.mode == ModeMulti {
		uniqueCols += ", reaction"
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id             TEXT PRIMARY KEY,
			reactable_type TEXT NOT NULL,
			reactable_id   TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			reaction       TEXT NOT NULL,
			meta           TEXT,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_kind
			ON %[1]s(reactable_type, reactable_id, reaction);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_created
			ON %[1]s(reactable_type, reactable_id, created_at);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_%[2]s_key
			ON %[1]s(%[3]s);
	`, t, s.mode, uniqueCols)

	_, err := s.db.Exec(schema)
	return err
}

// checkMode records the table's mode on first use and rejects a later open
// with a different one.
func (s *SQLiteStore) checkMode() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS reaction_store_modes (
			table_name TEXT PRIMARY KEY,
			mode       TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating mode registry: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO reaction_store_modes (table_name, mode, created_at) VALUES (?, ?, ?)`,
		s.table, string(s.mode), s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording store mode: %w", err)
	}

	var stored string
	err = s.db.QueryRow(`SELECT mode FROM reaction_store_modes WHERE table_name = ?`, s.table).Scan(&stored)
	if err != nil {
		return fmt.Errorf("reading store mode: %w", err)
	}
	mode, err := ParseMode(stored)
	if err != nil {
		return fmt.Errorf("reading store mode for %s: %w", s.table, err)
	}
	if mode != s.mode {
		return fmt.Errorf("%w: table %s is %s, opened as %s", ErrModeMismatch, s.table, mode, s.mode)
	}
	return nil
}

// Mode reports the unique key this store enforces.
func (s *SQLiteStore) Mode() Mode {
	return s.mode
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("pinging database", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Begin opens a transaction that callers thread through store calls.
func (s *SQLiteStore) Begin(ctx context.Context) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("beginning session", err)
	}
	return &sqliteSession{tx: tx, owner: s}, nil
}

// conn picks the transaction from sess, or the pool when sess is nil.
func (s *SQLiteStore) conn(sess Session) (querier, error) {
	if sess == nil {
		return s.db, nil
	}
	ss, ok := sess.(*sqliteSession)
	if !ok || ss.owner != s {
		return nil, ErrForeignSession
	}
	return ss.tx, nil
}

const reactionColumns = `id, reactable_type, reactable_id, user_id, reaction, meta, created_at, updated_at`

// InsertIfAbsent inserts r. A unique-key collision returns ErrConflict.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, sess Session, r *Reaction) (*Reaction, error) {
	q, err := s.conn(sess)
	if err != nil {
		return nil, err
	}

	rec, args, err := s.prepareInsert(r)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table, reactionColumns)

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, classify("inserting reaction", err)
	}

	s.logger.Debug("inserted reaction",
		"id", rec.ID, "type", rec.ReactableType, "reactable", rec.ReactableID,
		"user", rec.UserID, "reaction", rec.Reaction)
	return rec, nil
}

// UpsertReplace inserts r, or overwrites the row holding r's unique key, in
// one statement. The existing row keeps its id and created_at.
func (s *SQLiteStore) UpsertReplace(ctx context.Context, sess Session, r *Reaction) (*Reaction, error) {
	q, err := s.conn(sess)
	if err != nil {
		return nil, err
	}

	_, args, err := s.prepareInsert(r)
	if err != nil {
		return nil, err
	}

	conflict := "reactable_type, reactable_id, user_id"
	set := "reaction = excluded.reaction, meta = excluded.meta, updated_at = excluded.updated_at"
	if s.mode == ModeMulti {
		conflict += ", reaction"
		set = "meta = excluded.meta, updated_at = excluded.updated_at"
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (%[3]s) DO UPDATE SET %[4]s
		RETURNING %[2]s
	`, s.table, reactionColumns, conflict, set)

	rec, err := scanReaction(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, classify("upserting reaction", err)
	}

	s.logger.Debug("upserted reaction",
		"id", rec.ID, "type", rec.ReactableType, "reactable", rec.ReactableID,
		"user", rec.UserID, "reaction", rec.Reaction)
	return rec, nil
}

// prepareInsert stamps id and timestamps on a copy of r and returns the
// insert arguments in reactionColumns order.
func (s *SQLiteStore) prepareInsert(r *Reaction) (*Reaction, []any, error) {
	rec := cloneReaction(r)
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return nil, nil, err
	}

	return rec, []any{
		rec.ID,
		rec.ReactableType,
		rec.ReactableID,
		rec.UserID,
		rec.Reaction,
		meta,
		now.Format(timeLayout),
		now.Format(timeLayout),
	}, nil
}

// DeleteMatching removes every row matching f.
func (s *SQLiteStore) DeleteMatching(ctx context.Context, sess Session, f Filter) (int64, error) {
	if f.ReactableType == "" || f.ReactableID == "" {
		return 0, ErrEmptyFilter
	}
	q, err := s.conn(sess)
	if err != nil {
		return 0, err
	}

	where, args := f.where()
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.table, where)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("deleting reactions", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("deleted reactions", "type", f.ReactableType, "reactable", f.ReactableID, "user", f.UserID, "count", n)
	return n, nil
}

// FindOne returns the newest row matching f, or ErrNotFound.
func (s *SQLiteStore) FindOne(ctx context.Context, sess Session, f Filter) (*Reaction, error) {
	q, err := s.conn(sess)
	if err != nil {
		return nil, err
	}

	where, args := f.where()
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, reactionColumns, s.table, where)

	rec, err := scanReaction(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("querying reaction", err)
	}
	return rec, nil
}

// FindMany returns rows matching f ordered newest first.
func (s *SQLiteStore) FindMany(ctx context.Context, sess Session, f Filter, p Page) ([]*Reaction, error) {
	q, err := s.conn(sess)
	if err != nil {
		return nil, err
	}

	p = p.Normalize()
	where, args := f.where()
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, reactionColumns, s.table, where)
	args = append(args, p.Limit, p.Skip)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("querying reactions", err)
	}
	defer rows.Close()

	var out []*Reaction
	for rows.Next() {
		rec, err := scanReaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reaction: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating reactions", err)
	}
	return out, nil
}

// AggregateCounts groups rows matching f by reaction.
func (s *SQLiteStore) AggregateCounts(ctx context.Context, sess Session, f Filter) (map[string]int, error) {
	q, err := s.conn(sess)
	if err != nil {
		return nil, err
	}

	where, args := f.where()
	query := fmt.Sprintf(`
		SELECT reaction, COUNT(*) FROM %s
		WHERE %s
		GROUP BY reaction
	`, s.table, where)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("counting reactions", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating counts", err)
	}
	return counts, nil
}

// where renders f as a SQL predicate. An empty filter matches every row.
func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any

	add := func(col, val string) {
		if val == "" {
			return
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, val)
	}
	add("id", f.ID)
	add("reactable_type", f.ReactableType)
	add("reactable_id", f.ReactableID)
	add("user_id", f.UserID)
	add("reaction", f.Reaction)

	if len(clauses) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReaction(row rowScanner) (*Reaction, error) {
	var r Reaction
	var meta sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&r.ID,
		&r.ReactableType,
		&r.ReactableID,
		&r.UserID,
		&r.Reaction,
		&meta,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &r.Meta); err != nil {
			return nil, fmt.Errorf("decoding meta: %w", err)
		}
	}

	r.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	r.UpdatedAt, err = time.Parse(timeLayout, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &r, nil
}

// encodeMeta converts meta to a nullable JSON column value.
func encodeMeta(meta map[string]any) (any, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding meta: %w", err)
	}
	return string(b), nil
}
