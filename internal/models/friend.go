package models

import (
	"sort"

	"playroom/internal/store"
)

// FriendRequest is a pending directed friend-request document. It exists only
// between send and accept/reject; resolution deletes it. Duplicate requests
// for the same (from, to) pair are tolerated; accepting twice must not
// double-create edges.
type FriendRequest struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	CreatedAt int64  `json:"created_at"`
}

// Doc returns the full request document.
func (r FriendRequest) Doc() store.Doc {
	return store.Doc{
		"from":      r.From,
		"to":        r.To,
		"createdAt": r.CreatedAt,
	}
}

// FriendRequestFromSnapshot decodes a friend request snapshot.
func FriendRequestFromSnapshot(snap store.Snapshot) FriendRequest {
	d := snap.Data
	return FriendRequest{
		ID:        snap.Key.ID,
		From:      docString(d, "from"),
		To:        docString(d, "to"),
		CreatedAt: docInt(d, "createdAt"),
	}
}

// FriendSetFromSnapshot decodes a friend edge-set document into a sorted uid
// list. Presence of a key denotes an edge; the value is ignored.
func FriendSetFromSnapshot(snap store.Snapshot) []string {
	if !snap.Exists {
		return nil
	}
	uids := make([]string, 0, len(snap.Data))
	for uid := range snap.Data {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}
