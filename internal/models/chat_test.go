package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"playroom/internal/store"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("b", "a"), PairKey("a", "b"))
	assert.Equal(t, "a_b", PairKey("b", "a"))
}

func TestFriendSetFromSnapshot(t *testing.T) {
	assert.Nil(t, FriendSetFromSnapshot(store.Snapshot{Key: FriendsKey("u1")}))

	snap := store.Snapshot{
		Key:    FriendsKey("u1"),
		Exists: true,
		Data:   store.Doc{"u3": true, "u2": true},
	}
	assert.Equal(t, []string{"u2", "u3"}, FriendSetFromSnapshot(snap))
}

func TestMessageDocOmitsEmptySenderName(t *testing.T) {
	doc := Message{ID: "m1", Text: "hi", SenderID: "u1", Timestamp: 5}.Doc()
	_, ok := doc["senderName"]
	assert.False(t, ok)

	doc = Message{ID: "m1", Text: "hi", SenderID: "u1", SenderName: "alice"}.Doc()
	assert.Equal(t, "alice", doc["senderName"])
}
