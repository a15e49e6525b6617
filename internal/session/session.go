// Package session ties authentication events to the rest of the engine:
// profile bootstrap on first sign-in, presence on login, and offline
// assertion before logout teardown.
package session

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"playroom/internal/models"
	"playroom/internal/presence"
	"playroom/internal/store"
)

// Manager drives the per-user session lifecycle.
type Manager struct {
	store    store.Store
	presence *presence.Manager
	log      *slog.Logger
}

// NewManager returns a session Manager.
func NewManager(st store.Store, pres *presence.Manager, log *slog.Logger) *Manager {
	return &Manager{store: st, presence: pres, log: log}
}

// DefaultAvatar returns a deterministic generated avatar URL for a username.
func DefaultAvatar(username string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(username)
}

// EnsureProfile creates the user's profile document on first sign-in. An
// existing profile is left untouched apart from the online flag, so tallies
// and the original username survive re-login.
func (m *Manager) EnsureProfile(ctx context.Context, uid, username, avatar string) (models.User, error) {
	if uid == "" {
		return models.User{}, models.NewValidationError("uid is required")
	}
	snap, err := m.store.Get(ctx, models.UserKey(uid))
	if err != nil {
		return models.User{}, models.NewStoreError(err)
	}
	if snap.Exists {
		return models.UserFromSnapshot(snap), nil
	}

	if username == "" {
		username = uid
	}
	if avatar == "" {
		avatar = DefaultAvatar(username)
	}
	user := models.User{
		UID:       uid,
		Username:  username,
		Avatar:    avatar,
		Online:    true,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.store.SetMerge(ctx, models.UserKey(uid), user.Doc()); err != nil {
		return models.User{}, models.NewStoreError(err)
	}
	m.log.Info("profile created", "uid", uid, "username", username)
	return user, nil
}

// Login bootstraps the profile if needed and asserts presence.
func (m *Manager) Login(ctx context.Context, uid, username, avatar string) (models.User, error) {
	user, err := m.EnsureProfile(ctx, uid, username, avatar)
	if err != nil {
		return models.User{}, err
	}
	if err := m.presence.MarkOnline(ctx, uid); err != nil {
		return models.User{}, err
	}
	user.Online = true
	return user, nil
}

// Logout asserts offline before any session state is torn down, so the user
// never appears online after their session is gone.
func (m *Manager) Logout(ctx context.Context, uid string) error {
	return m.presence.MarkOffline(ctx, uid)
}

// Profile returns a user's profile document.
func (m *Manager) Profile(ctx context.Context, uid string) (models.User, error) {
	snap, err := m.store.Get(ctx, models.UserKey(uid))
	if err != nil {
		return models.User{}, models.NewStoreError(err)
	}
	if !snap.Exists {
		return models.User{}, models.NewNotFoundError("user", uid)
	}
	return models.UserFromSnapshot(snap), nil
}
