package friends

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playroom/internal/models"
	"playroom/internal/store"
	"playroom/internal/store/memstore"
)

func newGraph(t *testing.T) (*Graph, store.Store) {
	t.Helper()
	st := memstore.New()
	return NewGraph(st, slog.New(slog.NewTextHandler(io.Discard, nil))), st
}

func seedUser(t *testing.T, st store.Store, uid, username string) {
	t.Helper()
	user := models.User{UID: uid, Username: username, CreatedAt: time.Now().UnixMilli()}
	require.NoError(t, st.SetMerge(context.Background(), models.UserKey(uid), user.Doc()))
}

func TestSearchFindsByExactUsername(t *testing.T) {
	g, st := newGraph(t)
	seedUser(t, st, "u1", "alice")
	seedUser(t, st, "u2", "bob")

	user, err := g.Search(context.Background(), "u1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.UID)
}

func TestSearchNeverReturnsSelf(t *testing.T) {
	g, st := newGraph(t)
	seedUser(t, st, "u1", "alice")

	_, err := g.Search(context.Background(), "u1", "alice")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestSearchMissingUser(t *testing.T) {
	g, _ := newGraph(t)
	_, err := g.Search(context.Background(), "u1", "nobody")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestSendRequestRejectsSelf(t *testing.T) {
	g, _ := newGraph(t)
	_, err := g.SendRequest(context.Background(), "u1", "u1")
	assert.Equal(t, models.CodeSelfRequest, models.ErrorCode(err))
}

func TestAcceptCreatesMutualEdgeAndDeletesRequest(t *testing.T) {
	g, st := newGraph(t)
	ctx := context.Background()

	req, err := g.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, g.Accept(ctx, req.ID))

	friendsOfU1, err := g.Friends(ctx, "u1")
	require.NoError(t, err)
	friendsOfU2, err := g.Friends(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, friendsOfU1)
	assert.Equal(t, []string{"u1"}, friendsOfU2)

	snap, err := st.Get(ctx, models.FriendRequestKey(req.ID))
	require.NoError(t, err)
	assert.False(t, snap.Exists, "request should be deleted after accept")
}

func TestAcceptDuplicateRequestsIsIdempotent(t *testing.T) {
	g, _ := newGraph(t)
	ctx := context.Background()

	first, err := g.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	second, err := g.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)

	require.NoError(t, g.Accept(ctx, first.ID))
	require.NoError(t, g.Accept(ctx, second.ID))

	friendsOfU1, err := g.Friends(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, friendsOfU1)
}

func TestAcceptMissingRequest(t *testing.T) {
	g, _ := newGraph(t)
	err := g.Accept(context.Background(), "gone")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestRejectDeletesWithoutEdge(t *testing.T) {
	g, _ := newGraph(t)
	ctx := context.Background()

	req, err := g.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, g.Reject(ctx, req.ID))
	// Rejecting again is a no-op.
	require.NoError(t, g.Reject(ctx, req.ID))

	friendsOfU2, err := g.Friends(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, friendsOfU2)
}

func TestAreFriends(t *testing.T) {
	g, _ := newGraph(t)
	ctx := context.Background()

	ok, err := g.AreFriends(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	req, err := g.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, g.Accept(ctx, req.ID))

	ok, err = g.AreFriends(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.AreFriends(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProfilesSkipsMissing(t *testing.T) {
	g, st := newGraph(t)
	seedUser(t, st, "u1", "alice")

	users, err := g.Profiles(context.Background(), []string{"u1", "ghost"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}

func TestWatchIncomingDeliversPendingRequests(t *testing.T) {
	g, _ := newGraph(t)
	ctx := context.Background()

	w, err := g.WatchIncoming(ctx, "u2")
	require.NoError(t, err)
	defer w.Cancel()

	// Initial snapshot is empty.
	select {
	case reqs := <-w.C:
		assert.Empty(t, reqs)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	_, err = g.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		select {
		case reqs := <-w.C:
			if len(reqs) == 1 && reqs[0].From == "u1" {
				return
			}
		case <-deadline:
			t.Fatal("request never delivered")
		}
	}
}

func TestWatchFriendSetSeesAcceptance(t *testing.T) {
	g, _ := newGraph(t)
	ctx := context.Background()

	w, err := g.WatchFriendSet(ctx, "u1")
	require.NoError(t, err)
	defer w.Cancel()

	select {
	case set := <-w.C:
		assert.Empty(t, set)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	req, err := g.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, g.Accept(ctx, req.ID))

	deadline := time.After(time.Second)
	for {
		select {
		case set := <-w.C:
			if len(set) == 1 && set[0] == "u2" {
				return
			}
		case <-deadline:
			t.Fatal("edge never delivered")
		}
	}
}
