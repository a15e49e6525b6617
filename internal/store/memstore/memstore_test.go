package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playroom/internal/store"
)

func TestGetMissingDocument(t *testing.T) {
	st := New()
	snap, err := st.Get(context.Background(), store.Key{Collection: "users", ID: "u1"})
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Nil(t, snap.Data)
}

func TestSetMergeCreatesAndMergesShallow(t *testing.T) {
	st := New()
	ctx := context.Background()
	key := store.Key{Collection: "users", ID: "u1"}

	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"username": "alice", "wins": 3}))
	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"online": true}))

	snap, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, "alice", snap.Data["username"])
	assert.Equal(t, float64(3), snap.Data["wins"], "untouched field survives the merge")
	assert.Equal(t, true, snap.Data["online"])
}

func TestGetReturnsACopy(t *testing.T) {
	st := New()
	ctx := context.Background()
	key := store.Key{Collection: "users", ID: "u1"}
	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"username": "alice"}))

	snap, err := st.Get(ctx, key)
	require.NoError(t, err)
	snap.Data["username"] = "mallory"

	again, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Data["username"])
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := New()
	ctx := context.Background()
	key := store.Key{Collection: "users", ID: "u1"}

	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"username": "alice"}))
	require.NoError(t, st.Delete(ctx, key))
	require.NoError(t, st.Delete(ctx, key))

	snap, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestGetQueryFiltersAndOrders(t *testing.T) {
	st := New()
	ctx := context.Background()

	require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "reqs", ID: "a"}, store.Doc{"to": "u2", "createdAt": 2}))
	require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "reqs", ID: "b"}, store.Doc{"to": "u2", "createdAt": 1}))
	require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "reqs", ID: "c"}, store.Doc{"to": "u9", "createdAt": 0}))

	res, err := st.GetQuery(ctx, store.Query{Collection: "reqs", OrderBy: "createdAt"}.Where("to", store.OpEqual, "u2"))
	require.NoError(t, err)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "b", res.Docs[0].Key.ID)
	assert.Equal(t, "a", res.Docs[1].Key.ID)
}

func TestWatchDeliversInitialAndChanges(t *testing.T) {
	st := New()
	ctx := context.Background()
	key := store.Key{Collection: "users", ID: "u1"}

	w, err := st.Watch(ctx, key)
	require.NoError(t, err)
	defer w.Cancel()

	select {
	case snap := <-w.C:
		assert.False(t, snap.Exists, "initial snapshot of a missing doc")
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"online": true}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-w.C:
			if snap.Exists && snap.Data["online"] == true {
				return
			}
		case <-deadline:
			t.Fatal("change never delivered")
		}
	}
}

func TestWatchCancelClosesChannel(t *testing.T) {
	st := New()
	key := store.Key{Collection: "users", ID: "u1"}

	w, err := st.Watch(context.Background(), key)
	require.NoError(t, err)
	<-w.C
	w.Cancel()
	w.Cancel() // safe twice

	select {
	case _, open := <-w.C:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel never closed")
	}
}

func TestWatchQueryCoalescesBursts(t *testing.T) {
	st := New()
	ctx := context.Background()

	w, err := st.WatchQuery(ctx, store.Query{Collection: "msgs", OrderBy: "ts"})
	require.NoError(t, err)
	defer w.Cancel()

	<-w.C // initial empty

	// A burst of writes while the subscriber is not reading collapses into
	// few refetches; the final snapshot must reflect all writes.
	for i := 0; i < 10; i++ {
		require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "msgs", ID: string(rune('a' + i))}, store.Doc{"ts": i}))
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-w.C:
			if len(snap.Docs) == 10 {
				return
			}
		case <-deadline:
			t.Fatal("full result set never observed")
		}
	}
}

func TestWatchQueryIgnoresOtherCollections(t *testing.T) {
	st := New()
	ctx := context.Background()

	w, err := st.WatchQuery(ctx, store.Query{Collection: "a"})
	require.NoError(t, err)
	defer w.Cancel()
	<-w.C

	require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "b", ID: "x"}, store.Doc{"v": 1}))

	select {
	case snap := <-w.C:
		// A refetch may still happen on startup races; it must stay empty.
		assert.Empty(t, snap.Docs)
	case <-time.After(100 * time.Millisecond):
	}
}
