package models

import "playroom/internal/store"

// User is a user profile document. The uid is issued by the auth
// collaborator; the core never deletes profiles.
type User struct {
	UID       string `json:"uid"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Online    bool   `json:"online"`
	Wins      int64  `json:"wins"`
	Losses    int64  `json:"losses"`
	Draws     int64  `json:"draws"`
	CreatedAt int64  `json:"created_at"`
}

// Doc returns the full document for profile creation.
func (u User) Doc() store.Doc {
	return store.Doc{
		"uid":       u.UID,
		"username":  u.Username,
		"avatar":    u.Avatar,
		"online":    u.Online,
		"wins":      u.Wins,
		"losses":    u.Losses,
		"draws":     u.Draws,
		"createdAt": u.CreatedAt,
	}
}

// UserFromSnapshot decodes a user profile snapshot.
func UserFromSnapshot(snap store.Snapshot) User {
	d := snap.Data
	return User{
		UID:       docString(d, "uid"),
		Username:  docString(d, "username"),
		Avatar:    docString(d, "avatar"),
		Online:    docBool(d, "online"),
		Wins:      docInt(d, "wins"),
		Losses:    docInt(d, "losses"),
		Draws:     docInt(d, "draws"),
		CreatedAt: docInt(d, "createdAt"),
	}
}
