// ABOUTME: Unit tests for MockStore behaviour that SQLiteStore does not share
// ABOUTME: Covers injected failures, projection and caller isolation

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_FailWith(t *testing.T) {
	s := NewMockStore(ModeSingle)
	ctx := context.Background()

	boom := errors.New("connection reset")
	s.FailWith = boom

	_, err := s.InsertIfAbsent(ctx, nil, reaction("alice", "like"))
	assert.ErrorIs(t, err, boom)

	_, err = s.FindMany(ctx, nil, postFilter, Page{})
	assert.ErrorIs(t, err, boom)

	s.FailWith = nil
	_, err = s.InsertIfAbsent(ctx, nil, reaction("alice", "like"))
	assert.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestMockStore_InvalidModeFallsBackToSingle(t *testing.T) {
	s := NewMockStore("bogus")
	assert.Equal(t, ModeSingle, s.Mode())
}

func TestMockStore_ReturnedRecordsAreCopies(t *testing.T) {
	s := NewMockStore(ModeSingle)
	ctx := context.Background()

	rec, err := s.InsertIfAbsent(ctx, nil, reaction("alice", "like"))
	require.NoError(t, err)
	rec.Reaction = "tampered"

	got, err := s.FindOne(ctx, nil, postFilter)
	require.NoError(t, err)
	assert.Equal(t, "like", got.Reaction)
}

func TestMockStore_RollbackRestoresDeletes(t *testing.T) {
	s := NewMockStore(ModeMulti)
	ctx := context.Background()

	_, err := s.InsertIfAbsent(ctx, nil, reaction("alice", "like"))
	require.NoError(t, err)

	sess, err := s.Begin(ctx)
	require.NoError(t, err)

	n, err := s.DeleteMatching(ctx, sess, postFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, sess.Rollback())
	assert.Equal(t, 1, s.Len())

	// The unique key is restored along with the row.
	_, err = s.InsertIfAbsent(ctx, nil, reaction("alice", "like"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.FindOne(ctx, sess, postFilter)
	assert.ErrorIs(t, err, ErrSessionDone)
}

func TestProject(t *testing.T) {
	r := reaction("alice", "like")
	r.ID = "r-1"
	r.Meta = map[string]any{"k": "v"}

	got, err := Project(r, []string{FieldUserID, FieldReaction})
	require.NoError(t, err)
	assert.Equal(t, &Reaction{UserID: "alice", Reaction: "like"}, got)

	same, err := Project(r, nil)
	require.NoError(t, err)
	assert.Same(t, r, same)

	_, err = Project(r, []string{"password"})
	assert.ErrorIs(t, err, ErrUnknownField)

	assert.NoError(t, ValidateProjection([]string{FieldID, FieldMeta, FieldCreatedAt, FieldUpdatedAt}))
	assert.ErrorIs(t, ValidateProjection([]string{FieldID, "nope"}), ErrUnknownField)
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Skip: 0, Limit: DefaultLimit}, Page{Skip: -3}.Normalize())
	assert.Equal(t, Page{Skip: 5, Limit: MaxLimit}, Page{Skip: 5, Limit: MaxLimit + 1}.Normalize())
	assert.Equal(t, Page{Skip: 1, Limit: 10}, Page{Skip: 1, Limit: 10}.Normalize())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", errors.New("UNIQUE constraint failed: reactions.user_id")), ErrConflict)
	assert.ErrorIs(t, classify("op", errors.New("database is locked")), ErrTransient)
	assert.ErrorIs(t, classify("op", context.DeadlineExceeded), ErrTransient)

	plain := errors.New("disk I/O error")
	err := classify("op", plain)
	assert.ErrorIs(t, err, plain)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrConflict)
}
