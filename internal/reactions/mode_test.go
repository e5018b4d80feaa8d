package reactions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-reactions/internal/store"
)

// racingStore simulates another writer: before each insert it runs race,
// which may create or remove the row the insert is about to collide with.
type racingStore struct {
	*store.MockStore
	race func()
}

func (s *racingStore) InsertIfAbsent(ctx context.Context, sess store.Session, r *store.Reaction) (*store.Reaction, error) {
	if s.race != nil {
		s.race()
	}
	return s.MockStore.InsertIfAbsent(ctx, sess, r)
}

func TestMultiReact_LosesRaceReturnsWinner(t *testing.T) {
	mock := store.NewMockStore(store.ModeMulti)
	st := &racingStore{MockStore: mock}
	ctx := context.Background()

	var winner *store.Reaction
	st.race = func() {
		st.race = nil
		var err error
		winner, err = mock.InsertIfAbsent(ctx, nil, &store.Reaction{
			ReactableType: "Post", ReactableID: "post-1", UserID: "alice", Reaction: "like",
		})
		require.NoError(t, err)
	}

	rec, err := multiMode{}.react(ctx, st, nil, &store.Reaction{
		ReactableType: "Post", ReactableID: "post-1", UserID: "alice", Reaction: "like",
	})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, rec.ID)
	assert.Equal(t, 1, mock.Len())
}

func TestMultiToggle_ConcurrentInsertIsNotAnError(t *testing.T) {
	mock := store.NewMockStore(store.ModeMulti)
	st := &racingStore{MockStore: mock}
	ctx := context.Background()

	st.race = func() {
		st.race = nil
		_, err := mock.InsertIfAbsent(ctx, nil, &store.Reaction{
			ReactableType: "Post", ReactableID: "post-1", UserID: "alice", Reaction: "like",
		})
		require.NoError(t, err)
	}

	res, err := multiMode{}.toggle(ctx, st, nil, &store.Reaction{
		ReactableType: "Post", ReactableID: "post-1", UserID: "alice", Reaction: "like",
	})
	require.NoError(t, err)
	assert.False(t, res.Removed)
	require.NotNil(t, res.Record)
	assert.Equal(t, 1, mock.Len())
}

// vanishingStore reports a conflict but the winning row is gone by the time
// it is reloaded.
type vanishingStore struct {
	*store.MockStore
}

func (vanishingStore) InsertIfAbsent(context.Context, store.Session, *store.Reaction) (*store.Reaction, error) {
	return nil, store.ErrConflict
}

func TestMultiReact_ConflictWithVanishedWinner(t *testing.T) {
	st := vanishingStore{MockStore: store.NewMockStore(store.ModeMulti)}

	_, err := multiMode{}.react(context.Background(), st, nil, &store.Reaction{
		ReactableType: "Post", ReactableID: "post-1", UserID: "alice", Reaction: "like",
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSingleToggle_DeleteIsConditionalOnKind(t *testing.T) {
	mock := store.NewMockStore(store.ModeSingle)
	ctx := context.Background()

	_, err := mock.UpsertReplace(ctx, nil, &store.Reaction{
		ReactableType: "Post", ReactableID: "post-1", UserID: "alice", Reaction: "like",
	})
	require.NoError(t, err)

	// Another writer switches to love between the read and the delete.
	st := &switchingStore{MockStore: mock}
	res, err := singleMode{}.toggle(ctx, st, nil, &store.Reaction{
		ReactableType: "Post", ReactableID: "post-1", UserID: "alice", Reaction: "like",
	})
	require.NoError(t, err)
	assert.True(t, res.Removed)

	left, err := mock.FindOne(ctx, nil, store.Filter{ReactableType: "Post", ReactableID: "post-1", UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "love", left.Reaction, "the concurrent switch survives")
}

type switchingStore struct {
	*store.MockStore
}

func (s *switchingStore) DeleteMatching(ctx context.Context, sess store.Session, f store.Filter) (int64, error) {
	_, err := s.MockStore.UpsertReplace(ctx, sess, &store.Reaction{
		ReactableType: f.ReactableType, ReactableID: f.ReactableID, UserID: f.UserID, Reaction: "love",
	})
	if err != nil {
		return 0, err
	}
	return s.MockStore.DeleteMatching(ctx, sess, f)
}
