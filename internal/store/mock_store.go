// ABOUTME: Mock Store implementation for testing
// ABOUTME: Enforces the same unique keys as SQLiteStore so engine tests run without a database

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockRow is a stored reaction plus its insertion sequence, which breaks
// created_at ties the way rowid does in SQLite.
type mockRow struct {
	rec *Reaction
	seq int64
}

// MockStore is an in-memory Store implementation for testing.
//
// Sessions only provide rollback: Begin snapshots the data and Rollback
// restores it. Writes made inside a session are visible to other callers
// immediately.
type MockStore struct {
	mu   sync.RWMutex
	mode Mode
	rows map[string]*mockRow // keyed by reaction ID
	keys map[string]string   // unique key -> reaction ID
	seq  int64
	now  func() time.Time

	// FailWith, when set, is returned by every data operation. Tests use it
	// to simulate transient store failures.
	FailWith error
}

// NewMockStore creates a new MockStore enforcing mode's unique key.
func NewMockStore(mode Mode) *MockStore {
	if !mode.Valid() {
		mode = ModeSingle
	}
	return &MockStore{
		mode: mode,
		rows: make(map[string]*mockRow),
		keys: make(map[string]string),
		now:  time.Now,
	}
}

// SetClock replaces the store's time source.
func (m *MockStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Mode reports the unique key this store enforces.
func (m *MockStore) Mode() Mode {
	return m.mode
}

// Ping reports FailWith or a cancelled context.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(ctx, nil)
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Len returns the number of stored reactions.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *MockStore) uniqueKey(r *Reaction) string {
	k := r.ReactableType + "\x00" + r.ReactableID + "\x00" + r.UserID
	if m.mode == ModeMulti {
		k += "\x00" + r.Reaction
	}
	return k
}

type mockSession struct {
	owner *MockStore
	rows  map[string]*mockRow
	keys  map[string]string
	seq   int64
	done  bool
}

func (s *mockSession) Commit() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.done {
		return ErrSessionDone
	}
	s.done = true
	return nil
}

func (s *mockSession) Rollback() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.done {
		return ErrSessionDone
	}
	s.done = true
	s.owner.rows = s.rows
	s.owner.keys = s.keys
	s.owner.seq = s.seq
	return nil
}

// Begin snapshots the store so Rollback can restore it.
func (m *MockStore) Begin(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make(map[string]*mockRow, len(m.rows))
	for id, r := range m.rows {
		rows[id] = &mockRow{rec: cloneReaction(r.rec), seq: r.seq}
	}
	keys := make(map[string]string, len(m.keys))
	for k, v := range m.keys {
		keys[k] = v
	}
	return &mockSession{owner: m, rows: rows, keys: keys, seq: m.seq}, nil
}

// check validates the session and injected failure. Must be called with mu held.
func (m *MockStore) check(ctx context.Context, sess Session) error {
	if err := ctx.Err(); err != nil {
		return classify("mock store", err)
	}
	if m.FailWith != nil {
		return m.FailWith
	}
	if sess == nil {
		return nil
	}
	ms, ok := sess.(*mockSession)
	if !ok || ms.owner != m {
		return ErrForeignSession
	}
	if ms.done {
		return ErrSessionDone
	}
	return nil
}

// InsertIfAbsent stores r unless its unique key is taken.
func (m *MockStore) InsertIfAbsent(ctx context.Context, sess Session, r *Reaction) (*Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, sess); err != nil {
		return nil, err
	}

	key := m.uniqueKey(r)
	if _, exists := m.keys[key]; exists {
		return nil, ErrConflict
	}

	rec := cloneReaction(r)
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := m.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	m.seq++
	m.rows[rec.ID] = &mockRow{rec: rec, seq: m.seq}
	m.keys[key] = rec.ID

	return cloneReaction(rec), nil
}

// UpsertReplace inserts r or overwrites the record holding its unique key.
func (m *MockStore) UpsertReplace(ctx context.Context, sess Session, r *Reaction) (*Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, sess); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	key := m.uniqueKey(r)

	if id, exists := m.keys[key]; exists {
		existing := m.rows[id].rec
		existing.Reaction = r.Reaction
		existing.Meta = cloneReaction(r).Meta
		existing.UpdatedAt = now
		return cloneReaction(existing), nil
	}

	rec := cloneReaction(r)
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	m.seq++
	m.rows[rec.ID] = &mockRow{rec: rec, seq: m.seq}
	m.keys[key] = rec.ID

	return cloneReaction(rec), nil
}

// DeleteMatching removes every record matching f.
func (m *MockStore) DeleteMatching(ctx context.Context, sess Session, f Filter) (int64, error) {
	if f.ReactableType == "" || f.ReactableID == "" {
		return 0, ErrEmptyFilter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, sess); err != nil {
		return 0, err
	}

	var n int64
	for id, row := range m.rows {
		if !f.matches(row.rec) {
			continue
		}
		delete(m.keys, m.uniqueKey(row.rec))
		delete(m.rows, id)
		n++
	}
	return n, nil
}

// FindOne returns the newest record matching f.
func (m *MockStore) FindOne(ctx context.Context, sess Session, f Filter) (*Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(ctx, sess); err != nil {
		return nil, err
	}

	rows := m.sorted(f)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return cloneReaction(rows[0].rec), nil
}

// FindMany returns records matching f, newest first.
func (m *MockStore) FindMany(ctx context.Context, sess Session, f Filter, p Page) ([]*Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(ctx, sess); err != nil {
		return nil, err
	}

	p = p.Normalize()
	rows := m.sorted(f)
	if p.Skip >= len(rows) {
		return nil, nil
	}
	rows = rows[p.Skip:]
	if len(rows) > p.Limit {
		rows = rows[:p.Limit]
	}

	out := make([]*Reaction, len(rows))
	for i, row := range rows {
		out[i] = cloneReaction(row.rec)
	}
	return out, nil
}

// AggregateCounts groups records matching f by reaction.
func (m *MockStore) AggregateCounts(ctx context.Context, sess Session, f Filter) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(ctx, sess); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, row := range m.rows {
		if f.matches(row.rec) {
			counts[row.rec.Reaction]++
		}
	}
	return counts, nil
}

// sorted returns rows matching f ordered by created_at then insertion, newest first.
// Must be called with mu held.
func (m *MockStore) sorted(f Filter) []*mockRow {
	var rows []*mockRow
	for _, row := range m.rows {
		if f.matches(row.rec) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})
	return rows
}

func (f Filter) matches(r *Reaction) bool {
	return (f.ID == "" || f.ID == r.ID) &&
		(f.ReactableType == "" || f.ReactableType == r.ReactableType) &&
		(f.ReactableID == "" || f.ReactableID == r.ReactableID) &&
		(f.UserID == "" || f.UserID == r.UserID) &&
		(f.Reaction == "" || f.Reaction == r.Reaction)
}
