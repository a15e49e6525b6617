package gormstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"playroom/internal/store"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	st, err := New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return st
}

func TestGetMissingDocument(t *testing.T) {
	st := newStore(t)
	snap, err := st.Get(context.Background(), store.Key{Collection: "users", ID: "u1"})
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestSetMergeCreatesThenMerges(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	key := store.Key{Collection: "users", ID: "u1"}

	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"username": "alice", "wins": 2}))
	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"online": true}))

	snap, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, "alice", snap.Data["username"])
	assert.Equal(t, float64(2), snap.Data["wins"])
	assert.Equal(t, true, snap.Data["online"])
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	key := store.Key{Collection: "users", ID: "u1"}

	require.NoError(t, st.SetMerge(ctx, key, store.Doc{"username": "alice"}))
	require.NoError(t, st.Delete(ctx, key))
	require.NoError(t, st.Delete(ctx, key))

	snap, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestGetQueryFiltersInGo(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "games", ID: "g1"},
		store.Doc{"players": []string{"u1", "u2"}, "status": "in_progress", "createdAt": 2}))
	require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "games", ID: "g2"},
		store.Doc{"players": []string{"u1", "u3"}, "status": "finished", "createdAt": 1}))
	require.NoError(t, st.SetMerge(ctx, store.Key{Collection: "games", ID: "g3"},
		store.Doc{"players": []string{"u4", "u5"}, "status": "in_progress", "createdAt": 3}))

	res, err := st.GetQuery(ctx, store.Query{Collection: "games", OrderBy: "createdAt"}.
		Where("players", store.OpContains, "u1").
		Where("status", store.OpEqual, "in_progress"))
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	assert.Equal(t, "g1", res.Docs[0].Key.ID)
}

func TestWatchDeliversChanges(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	key := store.Key{Collection: "users", ID: "u1"}

	w, err := st.Watch(ctx, key)
	require.NoError(t, err)
	defer w.Cancel()

	select {
	case snap := <-w.C:
		assert.False(t, snap.Exists)
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
