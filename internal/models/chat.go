package models

import (
	"sort"
	"strings"

	"playroom/internal/store"
)

// PairKey canonicalizes an unordered uid pair into the deterministic identity
// of a two-party conversation.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// Message is one entry of a conversation's ordered log. Delivered and Seen
// are monotone: once true they never reset, and Seen implies Delivered.
type Message struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Delivered  bool   `json:"delivered"`
	Seen       bool   `json:"seen"`
}

// Doc returns the full message document.
func (m Message) Doc() store.Doc {
	d := store.Doc{
		"text":      m.Text,
		"senderId":  m.SenderID,
		"timestamp": m.Timestamp,
		"delivered": m.Delivered,
		"seen":      m.Seen,
	}
	if m.SenderName != "" {
		d["senderName"] = m.SenderName
	}
	return d
}

// MessageFromSnapshot decodes a message snapshot.
func MessageFromSnapshot(snap store.Snapshot) Message {
	d := snap.Data
	return Message{
		ID:         snap.Key.ID,
		Text:       docString(d, "text"),
		SenderID:   docString(d, "senderId"),
		SenderName: docString(d, "senderName"),
		Timestamp:  docInt(d, "timestamp"),
		Delivered:  docBool(d, "delivered"),
		Seen:       docBool(d, "seen"),
	}
}

// TypingStatus is a conversation's last-writer-wins typing indicator.
type TypingStatus struct {
	Typing  bool   `json:"typing"`
	TypedBy string `json:"typed_by"`
}

// Doc returns the indicator document.
func (t TypingStatus) Doc() store.Doc {
	return store.Doc{"typing": t.Typing, "typedBy": t.TypedBy}
}

// TypingStatusFromSnapshot decodes a typing indicator snapshot.
func TypingStatusFromSnapshot(snap store.Snapshot) TypingStatus {
	return TypingStatus{
		Typing:  docBool(snap.Data, "typing"),
		TypedBy: docString(snap.Data, "typedBy"),
	}
}

// GroupChat is a broadcast conversation with a fixed member set.
type GroupChat struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedBy string   `json:"created_by"`
	CreatedAt int64    `json:"created_at"`
}

// Doc returns the full group document.
func (g GroupChat) Doc() store.Doc {
	members := make([]any, len(g.Members))
	for i, m := range g.Members {
		members[i] = m
	}
	return store.Doc{
		"name":      g.Name,
		"members":   members,
		"createdBy": g.CreatedBy,
		"createdAt": g.CreatedAt,
	}
}

// GroupChatFromSnapshot decodes a group chat snapshot.
func GroupChatFromSnapshot(snap store.Snapshot) GroupChat {
	d := snap.Data
	return GroupChat{
		ID:        snap.Key.ID,
		Name:      docString(d, "name"),
		Members:   docStrings(d, "members"),
		CreatedBy: docString(d, "createdBy"),
		CreatedAt: docInt(d, "createdAt"),
	}
}
