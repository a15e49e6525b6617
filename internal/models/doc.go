// Package models contains data structures for the application's domain
// documents and the board logic of the turn game.
package models

import "playroom/internal/store"

// Collection names in the document store.
const (
	UsersCollection          = "users"
	FriendsCollection        = "friends"
	FriendRequestsCollection = "friendRequests"
	GamesCollection          = "games"
	GameInvitesCollection    = "gameInvites"
	GroupChatsCollection     = "groupChats"
)

// UserKey returns the key of a user profile document.
func UserKey(uid string) store.Key {
	return store.Key{Collection: UsersCollection, ID: uid}
}

// FriendsKey returns the key of a user's friend edge set.
func FriendsKey(uid string) store.Key {
	return store.Key{Collection: FriendsCollection, ID: uid}
}

// FriendRequestKey returns the key of a pending friend request.
func FriendRequestKey(id string) store.Key {
	return store.Key{Collection: FriendRequestsCollection, ID: id}
}

// GameKey returns the key of a game session.
func GameKey(id string) store.Key {
	return store.Key{Collection: GamesCollection, ID: id}
}

// GameInviteKey returns the key of a game invitation.
func GameInviteKey(id string) store.Key {
	return store.Key{Collection: GameInvitesCollection, ID: id}
}

// GroupChatKey returns the key of a group chat document.
func GroupChatKey(id string) store.Key {
	return store.Key{Collection: GroupChatsCollection, ID: id}
}

// MessagesCollection returns the message log collection of a two-party
// conversation identified by its canonical pair key.
func MessagesCollection(pairKey string) string {
	return "conversations/" + pairKey + "/messages"
}

// TypingStatusKey returns the key of a conversation's typing indicator
// singleton.
func TypingStatusKey(pairKey string) store.Key {
	return store.Key{Collection: "conversations/" + pairKey + "/typingStatus", ID: "status"}
}

// GroupMessagesCollection returns the message log collection of a group chat.
func GroupMessagesCollection(groupID string) string {
	return "groupChats/" + groupID + "/messages"
}

// Field decoding helpers. Documents come back from the store JSON-normalized,
// so numbers are float64 and arrays are []any.

func docString(d store.Doc, field string) string {
	s, _ := d[field].(string)
	return s
}

func docBool(d store.Doc, field string) bool {
	b, _ := d[field].(bool)
	return b
}

func docInt(d store.Doc, field string) int64 {
	f, _ := d[field].(float64)
	return int64(f)
}

func docStrings(d store.Doc, field string) []string {
	arr, _ := d[field].([]any)
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
